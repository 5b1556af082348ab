// Package labels builds the QR payloads printed on stock labels. Scanners on
// the floor parse the pipe-separated fields back out.
package labels

import (
	"fmt"
	"strings"
)

// Label is a printable stock label.
type Label struct {
	Payload  string `json:"payload"`
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Barcode  string `json:"barcode,omitempty"`
}

// Payload encodes the label fields in scan order. Pipes inside fields are
// replaced so the payload always splits into exactly four parts.
func Payload(itemCode, docNumber, itemName, batch string) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		sanitize(itemCode), sanitize(docNumber), sanitize(itemName), sanitize(batch))
}

func sanitize(field string) string {
	return strings.ReplaceAll(field, "|", "/")
}
