package claim

import (
	"strings"
	"testing"
)

func sampleRecord() Record {
	return Record{
		ID:            "42",
		Date:          "2024-03-15",
		Status:        StatusSubmitted,
		TotalCharge:   Money(250),
		InsurancePaid: Money(180.5),
		PatientPaid:   Money(0),
		PatientName:   "John Doe",
		PatientID:     "1",
		ProviderName:  "Dr. Smith",
		ProviderID:    "7",
		Items: []LineItem{
			{ProcedureCode: "99213", Description: "Office visit", Charge: Money(125)},
			{ProcedureCode: "85025", Description: "CBC", Charge: Money(45)},
			{ProcedureCode: "80053", Description: "Metabolic panel", Charge: Money(80)},
		},
	}
}

func TestFormatRecordLayout(t *testing.T) {
	out := DefaultFormatter().Format(FromRecord(sampleRecord()))

	want := []string{
		"Claim ID: 42\n",
		"Claim Date: 2024-03-15\n",
		"Claim Status: Submitted\n",
		"Total Charge: $250.00\n",
		"Insurance Paid: $180.50\n",
		"Patient Paid: $0.00\n\n",
		"Patient: John Doe (ID: 1)\n",
		"Provider: Dr. Smith (ID: 7)\n\n",
		"Services Billed:\n",
	}
	last := -1
	for _, fragment := range want {
		idx := strings.Index(out, fragment)
		if idx < 0 {
			t.Fatalf("missing %q in:\n%s", fragment, out)
		}
		if idx < last {
			t.Fatalf("fragment %q out of order in:\n%s", fragment, out)
		}
		last = idx
	}
}

func TestFormatOneLinePerItemInOrder(t *testing.T) {
	rec := sampleRecord()
	out := DefaultFormatter().Format(FromRecord(rec))

	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "- CPT Code:") {
			lines = append(lines, line)
		}
	}
	if len(lines) != len(rec.Items) {
		t.Fatalf("expected %d item lines, got %d", len(rec.Items), len(lines))
	}
	for i, item := range rec.Items {
		if !strings.Contains(lines[i], string(item.ProcedureCode)) {
			t.Fatalf("line %d = %q, want code %s", i, lines[i], item.ProcedureCode)
		}
	}
	if lines[0] != "- CPT Code: 99213, Description: Office visit, Charge: $125.00" {
		t.Fatalf("unexpected item line %q", lines[0])
	}
}

func TestFormatRawAmountFallback(t *testing.T) {
	in := ParseInput(`{"claim_id": 3, "status": "Pending", "total_charge": "twelve", "insurance_paid": null,
		"items": [{"cpt_code": "99214", "description": "Visit", "charge_amount": "abc"}]}`)
	if in.Record == nil {
		t.Fatalf("expected structured record")
	}
	out := DefaultFormatter().Format(in)
	if !strings.Contains(out, "Total Charge: $twelve\n") {
		t.Fatalf("expected raw total charge, got:\n%s", out)
	}
	if !strings.Contains(out, "Insurance Paid: $N/A\n") {
		t.Fatalf("expected N/A insurance paid, got:\n%s", out)
	}
	if !strings.Contains(out, "Patient Paid: $0.00\n") {
		t.Fatalf("expected missing amount to render as zero, got:\n%s", out)
	}
	if !strings.Contains(out, "Charge: $abc\n") {
		t.Fatalf("expected raw item charge, got:\n%s", out)
	}
	if !strings.Contains(out, "Patient: N/A (ID: N/A)") {
		t.Fatalf("expected N/A patient, got:\n%s", out)
	}
}

func TestFormatNumericStrings(t *testing.T) {
	in := ParseInput(`{"claim_id": "C-9", "claim_date": "2024-01-15T00:00:00Z", "total_charge": "1250.5"}`)
	out := DefaultFormatter().Format(in)
	if !strings.Contains(out, "Total Charge: $1250.50") {
		t.Fatalf("expected parsed numeric string, got:\n%s", out)
	}
	if !strings.Contains(out, "Claim Date: 2024-01-15\n") {
		t.Fatalf("expected normalized date, got:\n%s", out)
	}
}

func TestFormatRawText(t *testing.T) {
	out := DefaultFormatter().Format(ParseInput("patient billed twice for 99213"))
	if out != "Raw claim data:\npatient billed twice for 99213" {
		t.Fatalf("unexpected raw output %q", out)
	}
}

func TestFormatErrorIsAnnotatedNotPropagated(t *testing.T) {
	f, err := NewFormatter("Claim {{.Missing}}")
	if err != nil {
		t.Fatalf("parse layout: %v", err)
	}
	in := FromRecord(sampleRecord())
	if _, err := f.FormatStrict(in); err == nil {
		t.Fatalf("expected strict format error")
	}
	out := f.Format(in)
	if !strings.HasPrefix(out, "Error formatting claim data: ") {
		t.Fatalf("expected error block, got %q", out)
	}
	if !strings.Contains(out, `"claim_id":"42"`) {
		t.Fatalf("expected raw claim json in error block, got %q", out)
	}
}

func TestFormatUndecodableObjectIsAnnotated(t *testing.T) {
	text := `{"claim_id": 1, "patient_name": {"first": "Ann"}}`
	in := ParseInput(text)
	if in.Record != nil || in.Err == nil {
		t.Fatalf("expected decode error, got record=%v err=%v", in.Record, in.Err)
	}
	out := DefaultFormatter().Format(in)
	if !strings.HasPrefix(out, "Error formatting claim data: ") {
		t.Fatalf("expected error block, got %q", out)
	}
	if !strings.Contains(out, `"first": "Ann"`) {
		t.Fatalf("expected raw input in error block, got %q", out)
	}
	strict, err := DefaultFormatter().FormatStrict(in)
	if err != nil || strict != out {
		t.Fatalf("strict format should render the same block, got %q, %v", strict, err)
	}
}

func TestValidate(t *testing.T) {
	rec := sampleRecord()
	if err := rec.Validate(); err != nil {
		t.Fatalf("expected valid record: %v", err)
	}
	rec.Status = "Lost"
	rec.TotalCharge = Money(-1)
	err := rec.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "invalid claim status") || !strings.Contains(err.Error(), "negative amount") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseInputNonObject(t *testing.T) {
	for _, text := range []string{"", "[1,2]", "42", "{not json"} {
		in := ParseInput(text)
		if in.Record != nil {
			t.Fatalf("expected raw input for %q", text)
		}
		if in.Raw != text {
			t.Fatalf("raw = %q, want %q", in.Raw, text)
		}
		if in.Err != nil {
			t.Fatalf("non-object %q should not carry a decode error: %v", text, in.Err)
		}
	}
}
