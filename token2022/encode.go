package token2022

import (
	"bytes"
	"encoding/binary"
)

// EncodeAccount serializes a token account. A non-nil fee appends the
// account type byte and a TransferFeeAmount extension.
func EncodeAccount(layout AccountLayout, fee *FeeAmount) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, &layout)
	if fee == nil {
		return buf.Bytes()
	}
	buf.WriteByte(AccountTypeAccount)
	value := make([]byte, transferFeeAmountSize)
	binary.LittleEndian.PutUint64(value, fee.Withheld)
	writeExtension(buf, ExtensionTransferFeeAmount, value)
	return buf.Bytes()
}

// EncodeMint serializes a mint. A non-nil config pads the mint to the
// account size and appends a TransferFeeConfig extension.
func EncodeMint(layout MintLayout, config *TransferFeeConfigLayout) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, &layout)
	if config == nil {
		return buf.Bytes()
	}
	buf.Write(make([]byte, AccountLayoutSize-MintLayoutSize))
	buf.WriteByte(AccountTypeMint)
	value := new(bytes.Buffer)
	_ = binary.Write(value, binary.LittleEndian, config)
	writeExtension(buf, ExtensionTransferFeeConfig, value.Bytes())
	return buf.Bytes()
}

func writeExtension(buf *bytes.Buffer, typ ExtensionType, value []byte) {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint16(header[0:], uint16(typ))
	binary.LittleEndian.PutUint16(header[2:], uint16(len(value)))
	buf.Write(header)
	buf.Write(value)
}
