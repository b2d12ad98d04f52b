// Package document holds the steps that exercise the document lifecycle:
// upload, attestation, rejection, eligibility, and minting.
package document

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	UploadDocument(filename, contentType string, content []byte, fields map[string]string) error
	Saved(key string) (string, error)
}

// RegisterSteps registers the document lifecycle steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &documentSteps{tc: tc}

	ctx.Step(`^I upload a document "([^"]*)" for project "([^"]*)" with quantity (\d+)$`, steps.uploadDocument)
	ctx.Step(`^I fetch the saved document$`, steps.fetchSavedDocument)
	ctx.Step(`^I list documents with status "([^"]*)"$`, steps.listDocumentsWithStatus)
	ctx.Step(`^I attest the saved document with amount (\d+)$`, steps.attestSavedDocument)
	ctx.Step(`^I check mint eligibility for the saved document$`, steps.checkEligibility)
	ctx.Step(`^I record minting for the saved document with amount (\d+)$`, steps.recordMinting)
	ctx.Step(`^I reject the saved document because "([^"]*)"$`, steps.rejectSavedDocument)
}

type documentSteps struct {
	tc TestContext
}

func (s *documentSteps) uploadDocument(ctx context.Context, filename, project string, quantity int) error {
	// A nonce in the file keeps content hashes unique so reruns against a
	// long-lived server never trip the duplicate-content check.
	content := fmt.Sprintf("%%PDF-1.4 %s %d", project, time.Now().UnixNano())
	return s.tc.UploadDocument(filename, "application/pdf", []byte(content), map[string]string{
		"projectName": project,
		"projectType": "reforestation",
		"description": "Monitoring report for " + project,
		"location":    "Test Region",
		"quantity":    strconv.Itoa(quantity),
	})
}

func (s *documentSteps) fetchSavedDocument(ctx context.Context) error {
	id, err := s.tc.Saved("documentID")
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/documents/" + id)
}

func (s *documentSteps) listDocumentsWithStatus(ctx context.Context, status string) error {
	return s.tc.GET("/v1/documents?status=" + status)
}

func (s *documentSteps) attestSavedDocument(ctx context.Context, amount int) error {
	id, err := s.tc.Saved("documentID")
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/documents/"+id+"/attest", map[string]any{
		"externalProjectId": "PRJ-E2E-1",
		"externalSerial":    "SER-E2E-" + id,
		"amount":            amount,
		"recipient":         "0x2222222222222222222222222222222222222222",
		"nonce":             1,
	})
}

func (s *documentSteps) checkEligibility(ctx context.Context) error {
	id, err := s.tc.Saved("documentID")
	if err != nil {
		return err
	}
	return s.tc.GET("/v1/documents/" + id + "/eligibility")
}

func (s *documentSteps) recordMinting(ctx context.Context, amount int) error {
	id, err := s.tc.Saved("documentID")
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/documents/"+id+"/mint", map[string]any{
		"txRef":     "0xe2e0000000000000000000000000000000000000000000000000000000000001",
		"amount":    amount,
		"recipient": "0x2222222222222222222222222222222222222222",
		"tokenRef":  "credit-e2e-1",
	})
}

func (s *documentSteps) rejectSavedDocument(ctx context.Context, reason string) error {
	id, err := s.tc.Saved("documentID")
	if err != nil {
		return err
	}
	return s.tc.POST("/v1/documents/"+id+"/reject", map[string]any{
		"reason": reason,
	})
}
