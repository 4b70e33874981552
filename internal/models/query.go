package models

import (
	"fmt"
	"strings"
)

// Query is the fixed instruction sent for one card side. Fields names the keys
// the model is asked to return.
type Query struct {
	Side   Side     `json:"side" yaml:"side"`
	Text   string   `json:"text" yaml:"text"`
	Fields []string `json:"fields" yaml:"fields"`
}

// Validate ensures the query has a side and non-empty text.
func (q *Query) Validate() error {
	if _, err := ParseSide(string(q.Side)); err != nil {
		return err
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("query for %s side cannot be empty", q.Side)
	}
	return nil
}

// DefaultFrontQuery asks for the five front-side fields.
func DefaultFrontQuery() Query {
	return Query{
		Side: SideFront,
		Text: `Extract the following information from the given text as key-value pairs:
Full Name (list both given name and full name)
Card ID Number (format: ###-####-#######-#)
Date of Birth (format: DD/MM/YYYY)
Issue Date (format: DD/MM/YYYY)
Expiry Date (format: DD/MM/YYYY)
Please return only these five fields in JSON format.`,
		Fields: []string{"Full Name", "Card ID Number", "Date of Birth", "Issue Date", "Expiry Date"},
	}
}

// DefaultBackQuery asks for the two back-side fields.
func DefaultBackQuery() Query {
	return Query{
		Side: SideBack,
		Text: `Extract the following from the text as key-value pairs:
Occupation
Employer name (starting with 'Employer:')
Return these two fields in JSON format, ignoring any other text.`,
		Fields: []string{"Occupation", "Employer"},
	}
}
