// Package models holds the JSON bodies exchanged with the resume frontend.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexString accepts a JSON string or number, as the frontend sends ids and
// amounts either way. null decodes to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// ExportRequest is the body of POST /api/export.
type ExportRequest struct {
	ResumeName FlexString `json:"resumeName"`
	ResumeID   FlexString `json:"resumeId"`
	Language   FlexString `json:"language"`
	Format     string     `json:"format,omitempty"`
	Landscape  bool       `json:"landscape,omitempty"`
}

// Job is one scraped record.
type Job struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// ScrapeResponse is the success body of the scrape endpoints.
type ScrapeResponse struct {
	Success   bool  `json:"success"`
	TotalJobs int   `json:"totalJobs"`
	Jobs      []Job `json:"jobs"`
}

// FailureResponse is the failure body of the scrape and export endpoints.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse is the failure body of the payment endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MpesaPayRequest is the body of POST /api/mpesa/pay.
type MpesaPayRequest struct {
	Phone      FlexString `json:"phone"`
	Amount     FlexString `json:"amount"`
	AccountRef FlexString `json:"accountRef"`
}

// PayRequest is the body of POST /api/pay. Price is in whole dollars.
type PayRequest struct {
	Price FlexString `json:"price"`
}

// PayResponse returns the card intent to the frontend.
type PayResponse struct {
	ClientSecret string `json:"client_secret"`
	ServerTime   int64  `json:"server_time"`
}

// CheckRequest is the body of POST /api/check.
type CheckRequest struct {
	AccountType string `json:"accountType"`
	ExpDate     string `json:"expDate"`
}

// CheckResponse reports "true" while the membership is active.
type CheckResponse struct {
	Status string `json:"status"`
}

// DateResponse is the body of POST /api/date.
type DateResponse struct {
	Date time.Time `json:"date"`
}
