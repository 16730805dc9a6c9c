package claim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
	"time"
)

const defaultLayout = `Claim ID: {{na .ID}}
Claim Date: {{date .Date}}
Claim Status: {{na .Status}}
Total Charge: {{money .TotalCharge}}
Insurance Paid: {{money .InsurancePaid}}
Patient Paid: {{money .PatientPaid}}

Patient: {{na .PatientName}} (ID: {{na .PatientID}})
Provider: {{na .ProviderName}} (ID: {{na .ProviderID}})

Services Billed:
{{range .Items}}- CPT Code: {{na .ProcedureCode}}, Description: {{na .Description}}, Charge: {{money .Charge}}
{{end}}`

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

var funcs = template.FuncMap{
	"na": func(v fmt.Stringer) string {
		if s := v.String(); s != "" {
			return s
		}
		return "N/A"
	},
	"money": func(a Amount) string { return a.Text() },
	"date": func(t Text) string {
		if t == "" {
			return "N/A"
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, string(t)); err == nil {
				return parsed.Format("2006-01-02")
			}
		}
		return string(t)
	},
}

// Formatter renders claims into the canonical text handed to the model and
// the risk scorer. It is safe for concurrent use.
type Formatter struct {
	tmpl *template.Template
}

func NewFormatter(layout string) (*Formatter, error) {
	tmpl, err := template.New("claim").Funcs(funcs).Parse(layout)
	if err != nil {
		return nil, fmt.Errorf("parse claim layout: %w", err)
	}
	return &Formatter{tmpl: tmpl}, nil
}

func DefaultFormatter() *Formatter {
	return &Formatter{tmpl: template.Must(template.New("claim").Funcs(funcs).Parse(defaultLayout))}
}

// Format never fails. When rendering breaks, the returned block names the
// error and carries the raw input so the caller still has text to send on.
func (f *Formatter) Format(in Input) string {
	text, err := f.FormatStrict(in)
	if err != nil {
		return errorBlock(err, in)
	}
	return text
}

func (f *Formatter) FormatStrict(in Input) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("format panic: %v", r)
		}
	}()
	if in.Err != nil {
		return errorBlock(in.Err, in), nil
	}
	if in.Record == nil {
		return "Raw claim data:\n" + in.Raw, nil
	}
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, in.Record); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func errorBlock(err error, in Input) string {
	raw := in.Raw
	if in.Record != nil {
		if data, mErr := json.Marshal(in.Record); mErr == nil {
			raw = string(data)
		} else if raw == "" {
			raw = fmt.Sprintf("%+v", *in.Record)
		}
	}
	return fmt.Sprintf("Error formatting claim data: %v\nRaw claim data: %s", err, raw)
}
