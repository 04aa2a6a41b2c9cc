package binance

import "testing"

func TestParseExecutionReportDecodesFilledOrder(t *testing.T) {
	msg := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"njq-abc","i":12345,"X":"FILLED","z":"0.50000000","T":1690000000000}`)
	update, ok := parseExecutionReport(msg)
	if !ok {
		t.Fatalf("parseExecutionReport: want ok=true")
	}
	if update.ClientOrderID != "njq-abc" || update.VenueOrderID != "12345" || update.Status != "FILLED" || update.FilledQty != 0.5 {
		t.Fatalf("update=%+v, unexpected fields", update)
	}
}

func TestParseExecutionReportIgnoresOtherEventTypes(t *testing.T) {
	msg := []byte(`{"e":"outboundAccountPosition"}`)
	if _, ok := parseExecutionReport(msg); ok {
		t.Fatalf("parseExecutionReport: want ok=false for non executionReport event")
	}
}

func TestParseExecutionReportRejectsMalformedJSON(t *testing.T) {
	if _, ok := parseExecutionReport([]byte("not json")); ok {
		t.Fatalf("parseExecutionReport: want ok=false for malformed payload")
	}
}
