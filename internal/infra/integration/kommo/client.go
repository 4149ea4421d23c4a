package kommo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/infra/queue"
)

var ErrNotConfigured = errors.New("kommo not configured")

var errNotFound = errors.New("not found")

const externalTagPrefix = "crm:"

// Client mirrors lead changes into a Kommo pipeline.
type Client struct {
	apiToken   string
	baseURL    string
	statusIDs  map[entity.Status]int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(apiToken, baseURL string, statusIDs map[entity.Status]int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		statusIDs:  statusIDs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Name() string { return "kommo" }

// HandleLeadEvent makes the client a queue.EventHandler.
func (c *Client) HandleLeadEvent(ctx context.Context, event queue.LeadEvent) error {
	if c.apiToken == "" {
		return ErrNotConfigured
	}
	if event.Lead == nil {
		// lead.deleted: o Kommo mantém o histórico, nada a fazer
		return nil
	}

	switch event.Type {
	case queue.EventLeadCreated:
		_, err := c.CreateLead(ctx, c.leadInput(event.Lead))
		return err
	case queue.EventLeadStatusChanged, queue.EventLeadUpdated:
		return c.SyncStatus(ctx, event.Lead)
	}
	return nil
}

// SyncStatus moves the mirrored Kommo lead to the status of lead, creating it
// when it does not exist yet.
func (c *Client) SyncStatus(ctx context.Context, lead *entity.Lead) error {
	kommoID, err := c.findLeadByExternalID(ctx, lead.ID)
	if errors.Is(err, errNotFound) {
		_, err = c.CreateLead(ctx, c.leadInput(lead))
		return err
	}
	if err != nil {
		return err
	}

	statusID, ok := c.statusIDs[lead.Status]
	if !ok {
		c.logger.Debug("kommo: no pipeline stage mapped", zap.String("status", string(lead.Status)))
		return nil
	}

	payload := map[string]interface{}{
		"status_id": statusID,
		"price":     price(lead),
	}
	body, status, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/leads/%d", kommoID), payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("kommo: update lead %d: %d - %s", kommoID, status, string(body))
	}

	c.logger.Info("kommo: lead status synced",
		zap.Int("kommo_id", kommoID),
		zap.String("lead_id", lead.ID),
		zap.String("status", string(lead.Status)))
	return nil
}

func (c *Client) CreateLead(ctx context.Context, input CreateLeadInput) (int, error) {
	contactID, err := c.findOrCreateContact(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("kommo: find or create contact: %w", err)
	}

	lead := map[string]interface{}{
		"name":  leadName(input),
		"price": input.Price,
		"_embedded": map[string]interface{}{
			"tags": []map[string]interface{}{
				{"name": externalTagPrefix + input.ExternalID},
			},
			"contacts": []map[string]interface{}{
				{"id": contactID},
			},
		},
	}
	if input.StatusID != 0 {
		lead["status_id"] = input.StatusID
	}

	body, status, err := c.do(ctx, http.MethodPost, "/leads", []map[string]interface{}{lead})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("kommo: create lead: %d - %s", status, string(body))
	}

	var result leadsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Leads) == 0 {
		return 0, errors.New("kommo: lead not created")
	}

	leadID := result.Embedded.Leads[0].ID
	c.logger.Info("kommo: lead created", zap.Int("kommo_id", leadID), zap.String("lead_id", input.ExternalID))
	return leadID, nil
}

func (c *Client) findLeadByExternalID(ctx context.Context, externalID string) (int, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/leads?query="+url.QueryEscape(externalTagPrefix+externalID), nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNoContent {
		return 0, errNotFound
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("kommo: search lead: %d", status)
	}

	var result leadsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Leads) == 0 {
		return 0, errNotFound
	}
	return result.Embedded.Leads[0].ID, nil
}

func (c *Client) findOrCreateContact(ctx context.Context, input CreateLeadInput) (int, error) {
	query := input.Email
	if query == "" {
		query = input.Phone
	}
	if query != "" {
		contactID, err := c.findContact(ctx, query)
		if err == nil {
			c.logger.Debug("kommo: existing contact found", zap.Int("contact_id", contactID))
			return contactID, nil
		}
		if !errors.Is(err, errNotFound) {
			return 0, err
		}
	}
	return c.createContact(ctx, input)
}

func (c *Client) findContact(ctx context.Context, query string) (int, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/contacts?query="+url.QueryEscape(query), nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNoContent {
		return 0, errNotFound
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("kommo: search contact: %d", status)
	}

	var result contactsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, errNotFound
	}
	return result.Embedded.Contacts[0].ID, nil
}

func (c *Client) createContact(ctx context.Context, input CreateLeadInput) (int, error) {
	var fields []map[string]interface{}
	if input.Phone != "" {
		fields = append(fields, map[string]interface{}{
			"field_code": "PHONE",
			"values":     []map[string]interface{}{{"value": input.Phone, "enum_code": "WORK"}},
		})
	}
	if input.Email != "" {
		fields = append(fields, map[string]interface{}{
			"field_code": "EMAIL",
			"values":     []map[string]interface{}{{"value": input.Email, "enum_code": "WORK"}},
		})
	}

	contact := []map[string]interface{}{{
		"name":                 input.CustomerName,
		"custom_fields_values": fields,
	}}

	body, status, err := c.do(ctx, http.MethodPost, "/contacts", contact)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, fmt.Errorf("kommo: create contact: %d - %s", status, string(body))
	}

	var result contactsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, errors.New("kommo: contact id missing from response")
	}

	contactID := result.Embedded.Contacts[0].ID
	c.logger.Info("kommo: contact created", zap.Int("contact_id", contactID))
	return contactID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) addAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) leadInput(lead *entity.Lead) CreateLeadInput {
	return CreateLeadInput{
		ExternalID:   lead.ID,
		CustomerName: lead.Name,
		Company:      lead.Company,
		Phone:        lead.Phone,
		Email:        lead.Email,
		Price:        price(lead),
		StatusID:     c.statusIDs[lead.Status],
	}
}

func leadName(input CreateLeadInput) string {
	if input.Company == "" {
		return input.CustomerName
	}
	return fmt.Sprintf("%s - %s", input.CustomerName, input.Company)
}

func price(lead *entity.Lead) int {
	if lead.Value == nil {
		return 0
	}
	return int(*lead.Value)
}
