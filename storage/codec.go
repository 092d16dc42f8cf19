package storage

import (
	"livechat/contract"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Values are stored with Core Deterministic Encoding so the same record
// always produces identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		// Records are map[string]any, never map[any]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(r contract.Record) ([]byte, error) {
	return encMode.Marshal(map[string]any(r))
}

func decodeRecord(data []byte) (contract.Record, error) {
	var m map[string]any
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
