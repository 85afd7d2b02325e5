package core

import "scanadc/protocol"

// InitCoreCommands registers the bootstrap messages on the dictionary's
// registry.
// IMPORTANT: Registration order matters. The host expects
//
//	identify_response = ID 0
//	identify = ID 1
//
// before it has read the dictionary.
func InitCoreCommands(dict *Dictionary) {
	reg := dict.Registry()
	reg.Register("identify_response", "offset=%u data=%.*s", nil)
	reg.Register("identify", "offset=%u count=%c", func(data *[]byte) error {
		return handleIdentify(dict, data)
	})
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(dict *Dictionary, data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := dict.GetChunk(offset, uint8(count))
	dict.Registry().SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}
