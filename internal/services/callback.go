package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/models"
)

// Callback statuses understood by CloudFormation
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

const (
	defaultReason = "See the details in CloudWatch Log Stream"
	deleteReason  = "Delete Request Initiated. Deleting Lambda Function."
)

// CallbackPayload is the JSON body PUT to the request's ResponseURL
type CallbackPayload struct {
	Status             string                 `json:"Status"`
	Reason             string                 `json:"Reason"`
	PhysicalResourceId string                 `json:"PhysicalResourceId"`
	StackId            string                 `json:"StackId"`
	RequestId          string                 `json:"RequestId"`
	LogicalResourceId  string                 `json:"LogicalResourceId"`
	Data               map[string]interface{} `json:"Data,omitempty"`
}

// SelfDeleter deletes the running function
type SelfDeleter interface {
	SelfDelete(ctx context.Context) error
}

// CallbackReporter reports the outcome of a request to the provisioning
// framework. Each report is a single PUT; a lost callback is left to the
// framework's own timeout.
type CallbackReporter struct {
	httpClient HTTPClient
	deleter    SelfDeleter
}

func NewCallbackReporter(httpClient HTTPClient, deleter SelfDeleter) *CallbackReporter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CallbackReporter{
		httpClient: httpClient,
		deleter:    deleter,
	}
}

// Success reports SUCCESS with data
func (r *CallbackReporter) Success(ctx context.Context, req models.ProvisioningRequest, data map[string]interface{}) error {
	return r.send(ctx, req, newPayload(req, StatusSuccess, defaultReason, data))
}

// Failure reports FAILED with reason and then deletes the function. Both
// steps are attempted; the first error is returned.
func (r *CallbackReporter) Failure(ctx context.Context, req models.ProvisioningRequest, reason string) error {
	sendErr := r.send(ctx, req, newPayload(req, StatusFailed, reason, nil))
	deleteErr := r.selfDelete(ctx)
	if sendErr != nil {
		return sendErr
	}
	return deleteErr
}

// DeleteAcknowledged reports SUCCESS for a Delete request and then deletes
// the function.
func (r *CallbackReporter) DeleteAcknowledged(ctx context.Context, req models.ProvisioningRequest) error {
	sendErr := r.send(ctx, req, newPayload(req, StatusSuccess, deleteReason, nil))
	deleteErr := r.selfDelete(ctx)
	if sendErr != nil {
		return sendErr
	}
	return deleteErr
}

func newPayload(req models.ProvisioningRequest, status, reason string, data map[string]interface{}) CallbackPayload {
	return CallbackPayload{
		Status:             status,
		Reason:             reason,
		PhysicalResourceId: req.ServiceToken,
		StackId:            req.StackId,
		RequestId:          req.RequestId,
		LogicalResourceId:  req.LogicalResourceId,
		Data:               data,
	}
}

func (r *CallbackReporter) selfDelete(ctx context.Context) error {
	if r.deleter == nil {
		return nil
	}
	return r.deleter.SelfDelete(ctx)
}

func (r *CallbackReporter) send(ctx context.Context, req models.ProvisioningRequest, payload CallbackPayload) error {
	logger := zerolog.Ctx(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	if req.ResponseURL == "" {
		logger.Info().
			Str("status", payload.Status).
			RawJSON("payload", body).
			Msg("No ResponseURL, callback not sent")
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, req.ResponseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	// The presigned URL is signed without a content type
	httpReq.Header.Set("Content-Type", "")
	httpReq.ContentLength = int64(len(body))

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	logger.Info().
		Str("status", payload.Status).
		Int("http_status", resp.StatusCode).
		Msg("Callback sent")
	return nil
}
