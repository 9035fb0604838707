// pkg/visit/visit.go
package visit

// Visit is one appointment entry read off the rendered schedule. Optional
// fields are nil when the UI did not carry them. A Visit is never mutated
// after extraction.
type Visit struct {
	Location string  `json:"location"`
	Date     string  `json:"date"`
	Status   *string `json:"status"`
	Time     string  `json:"time"`
	Patient  string  `json:"patient"`
	Doctor   *string `json:"doctor"`
	Type     *string `json:"type"`
	Reason   *string `json:"reason"`
}
