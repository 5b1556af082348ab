package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockbridge/stockbridge-backend/pkg/config"
	"github.com/stockbridge/stockbridge-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the ERP service layer. A client with incomplete
// configuration, or one that cannot reach the ERP, degrades to offline mode:
// reads return fixtures and posts return failure results. It never panics and
// never blocks the document workflow.
type Client struct {
	baseURL           string
	username          string
	password          string
	companyDB         string
	transferResources []string
	httpClient        *http.Client
	logger            *logger.Logger

	mu        sync.Mutex
	sessionID string

	cacheMu      sync.RWMutex
	batchCache   map[string][]BatchDetail
	binCache     map[string][]WarehouseBin
	binItemCache map[string][]BinItem
}

// NewClient creates an ERP client from configuration. Empty base URL or
// credentials put the client in offline mode from the start.
func NewClient(cfg *config.ERPConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	resources := cfg.TransferRequestResources
	if len(resources) == 0 {
		resources = []string{"InventoryTransferRequests", "StockTransfers"}
	}

	return &Client{
		baseURL:           cfg.BaseURL,
		username:          cfg.Username,
		password:          cfg.Password,
		companyDB:         cfg.CompanyDB,
		transferResources: resources,
		httpClient:        &http.Client{Timeout: timeout},
		logger:            log.WithComponent("erp-client"),
		batchCache:        make(map[string][]BatchDetail),
		binCache:          make(map[string][]WarehouseBin),
		binItemCache:      make(map[string][]BinItem),
	}
}

// Offline reports whether the client is unconfigured for a live ERP.
func (c *Client) Offline() bool {
	return c.baseURL == "" || c.username == "" || c.password == "" || c.companyDB == ""
}

// ensureLoggedIn logs in lazily. It returns false instead of an error so
// callers can fall back to offline behavior.
func (c *Client) ensureLoggedIn(ctx context.Context) bool {
	if c.Offline() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		return true
	}

	if err := c.login(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("erp login failed, running in offline mode")
		return false
	}
	return true
}

func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"UserName":  c.username,
		"Password":  c.password,
		"CompanyDB": c.companyDB,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/b1s/v1/Login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("erp login returned %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		SessionID string `json:"SessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if result.SessionID == "" {
		return fmt.Errorf("erp login returned no session id")
	}

	c.sessionID = result.SessionID
	c.logger.Info().Msg("logged in to erp service layer")
	return nil
}

// resetSession drops the stored session so the next call logs in again.
func (c *Client) resetSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/b1s/v1/"+path, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	req.Header.Set("Cookie", "B1SESSION="+c.sessionID)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.resetSession()
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("erp request %s returned %d: %s", path, resp.StatusCode, string(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func filterQuery(filter string, extra url.Values) string {
	q := url.Values{}
	q.Set("$filter", filter)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return q.Encode()
}

// GetPurchaseOrder fetches a purchase order by document number. Offline mode
// and transport failures return a fixture so validation flows keep working;
// a live ERP with no match returns (nil, nil).
func (c *Client) GetPurchaseOrder(ctx context.Context, docNum int) (*SourceDocument, error) {
	if !c.ensureLoggedIn(ctx) {
		c.logger.Warn().Int("doc_num", docNum).Msg("erp unavailable, returning offline purchase order")
		return offlinePurchaseOrder(docNum), nil
	}

	var envelope valueEnvelope[rawDocument]
	path := "PurchaseOrders?" + filterQuery(fmt.Sprintf("DocNum eq %d", docNum), nil)
	if err := c.get(ctx, path, &envelope); err != nil {
		c.logger.Warn().Err(err).Int("doc_num", docNum).Msg("purchase order fetch failed, returning offline fixture")
		return offlinePurchaseOrder(docNum), nil
	}

	if len(envelope.Value) == 0 {
		return nil, nil
	}
	return envelope.Value[0].normalize(), nil
}

// GetTransferRequest fetches an inventory transfer request by document
// number. Deployments expose transfer requests under different resource
// names and filter syntaxes, so the client probes a prioritized list and
// returns the first non-empty match. Returns (nil, nil) when nothing matches.
func (c *Client) GetTransferRequest(ctx context.Context, docNum int) (*SourceDocument, error) {
	if !c.ensureLoggedIn(ctx) {
		c.logger.Warn().Int("doc_num", docNum).Msg("erp unavailable, returning offline transfer request")
		return offlineTransferRequest(docNum), nil
	}

	filters := []string{
		fmt.Sprintf("DocNum eq %d", docNum),
		fmt.Sprintf("DocNum eq '%d'", docNum),
	}

	for _, resource := range c.transferResources {
		for _, filter := range filters {
			var envelope valueEnvelope[rawDocument]
			path := resource + "?" + filterQuery(filter, nil)
			if err := c.get(ctx, path, &envelope); err != nil {
				c.logger.Debug().Err(err).Str("resource", resource).Msg("transfer request probe failed")
				continue
			}
			if len(envelope.Value) > 0 {
				doc := envelope.Value[0].normalize()
				c.logger.Info().
					Str("resource", resource).
					Int("doc_num", doc.DocNum).
					Str("status", doc.Status).
					Msg("transfer request found")
				return doc, nil
			}
		}
	}

	return nil, nil
}

// GetBatchNumbers returns released batches for an item. Results are cached
// per item code for the lifetime of the client.
func (c *Client) GetBatchNumbers(ctx context.Context, itemCode string) ([]BatchDetail, error) {
	c.cacheMu.RLock()
	cached, ok := c.batchCache[itemCode]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.ensureLoggedIn(ctx) {
		return offlineBatchNumbers(itemCode), nil
	}

	var envelope valueEnvelope[rawBatch]
	filter := fmt.Sprintf("ItemCode eq '%s' and Status eq 'bdsStatus_Released'", itemCode)
	if err := c.get(ctx, "BatchNumberDetails?"+filterQuery(filter, nil), &envelope); err != nil {
		return nil, err
	}

	batches := make([]BatchDetail, 0, len(envelope.Value))
	for _, b := range envelope.Value {
		batches = append(batches, b.normalize())
	}

	c.cacheMu.Lock()
	c.batchCache[itemCode] = batches
	c.cacheMu.Unlock()

	return batches, nil
}

// GetWarehouseBins returns the bin locations of a warehouse, cached per
// warehouse code.
func (c *Client) GetWarehouseBins(ctx context.Context, whsCode string) ([]WarehouseBin, error) {
	c.cacheMu.RLock()
	cached, ok := c.binCache[whsCode]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.ensureLoggedIn(ctx) {
		return offlineWarehouseBins(whsCode), nil
	}

	var envelope valueEnvelope[rawBin]
	filter := fmt.Sprintf("Warehouse eq '%s'", whsCode)
	if err := c.get(ctx, "BinLocations?"+filterQuery(filter, nil), &envelope); err != nil {
		return nil, err
	}

	bins := make([]WarehouseBin, 0, len(envelope.Value))
	for _, b := range envelope.Value {
		bins = append(bins, b.normalize())
	}

	c.cacheMu.Lock()
	c.binCache[whsCode] = bins
	c.cacheMu.Unlock()

	return bins, nil
}

type rawCrossjoinRow struct {
	Items struct {
		ItemCode     string `json:"ItemCode"`
		ItemName     string `json:"ItemName"`
		InventoryUoM string `json:"InventoryUoM"`
	} `json:"Items"`
	WarehouseInfo struct {
		InStock decimal.Decimal `json:"InStock"`
		Ordered decimal.Decimal `json:"Ordered"`
	} `json:"Items/ItemWarehouseInfoCollection"`
}

// GetBinItems scans a bin: resolves the bin's warehouse, then lists stocked
// items of that warehouse with their batch breakdown. Cached per bin code.
func (c *Client) GetBinItems(ctx context.Context, binCode string) ([]BinItem, error) {
	c.cacheMu.RLock()
	cached, ok := c.binItemCache[binCode]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.ensureLoggedIn(ctx) {
		return offlineBinItems(binCode), nil
	}

	var binEnvelope valueEnvelope[rawBin]
	if err := c.get(ctx, "BinLocations?"+filterQuery(fmt.Sprintf("BinCode eq '%s'", binCode), nil), &binEnvelope); err != nil {
		return nil, err
	}
	if len(binEnvelope.Value) == 0 {
		return nil, nil
	}

	bin := binEnvelope.Value[0].normalize()

	crossjoin := "$crossjoin(Items,Items/ItemWarehouseInfoCollection)?" +
		"$expand=Items($select=ItemCode,ItemName,InventoryUoM,QuantityOnStock)," +
		"Items/ItemWarehouseInfoCollection($select=InStock,Ordered)&" +
		"$filter=" + url.QueryEscape(fmt.Sprintf(
		"Items/ItemCode eq Items/ItemWarehouseInfoCollection/ItemCode and "+
			"Items/ItemWarehouseInfoCollection/WarehouseCode eq '%s'", bin.Warehouse))

	var rows valueEnvelope[rawCrossjoinRow]
	if err := c.get(ctx, crossjoin, &rows); err != nil {
		return nil, err
	}

	items := make([]BinItem, 0, len(rows.Value))
	for _, row := range rows.Value {
		if row.Items.ItemCode == "" {
			continue
		}

		if row.WarehouseInfo.InStock.Sign() <= 0 {
			continue
		}

		batches, err := c.GetBatchNumbers(ctx, row.Items.ItemCode)
		if err != nil {
			c.logger.Debug().Err(err).Str("item_code", row.Items.ItemCode).Msg("batch lookup failed during bin scan")
		}

		items = append(items, BinItem{
			ItemCode:      row.Items.ItemCode,
			ItemName:      row.Items.ItemName,
			UoM:           firstNonEmpty(row.Items.InventoryUoM, "EA"),
			InStock:       row.WarehouseInfo.InStock,
			Ordered:       row.WarehouseInfo.Ordered,
			WarehouseCode: bin.Warehouse,
			BinCode:       bin.BinCode,
			BinAbsEntry:   bin.AbsEntry,
			Batches:       batches,
		})
	}

	c.cacheMu.Lock()
	c.binItemCache[binCode] = items
	c.cacheMu.Unlock()

	return items, nil
}

// GetWarehouseBusinessPlaceID resolves the business place of a warehouse.
// Any failure falls back to 5, the default business place.
func (c *Client) GetWarehouseBusinessPlaceID(ctx context.Context, whsCode string) int {
	const fallback = 5

	if !c.ensureLoggedIn(ctx) {
		return fallback
	}

	q := url.Values{}
	q.Set("$select", "BusinessPlaceID")
	q.Set("$filter", fmt.Sprintf("WarehouseCode eq '%s'", whsCode))

	var envelope valueEnvelope[struct {
		BusinessPlaceID int `json:"BusinessPlaceID"`
	}]
	if err := c.get(ctx, "Warehouses?"+q.Encode(), &envelope); err != nil {
		c.logger.Warn().Err(err).Str("warehouse", whsCode).Msg("business place lookup failed, using fallback")
		return fallback
	}
	if len(envelope.Value) == 0 || envelope.Value[0].BusinessPlaceID == 0 {
		return fallback
	}
	return envelope.Value[0].BusinessPlaceID
}

// PostDeliveryNote posts a built purchase delivery note. The outcome is a
// PostResult value; the caller decides how a failure affects the workflow.
func (c *Client) PostDeliveryNote(ctx context.Context, payload *DeliveryNotePayload) PostResult {
	return c.post(ctx, "PurchaseDeliveryNotes", payload)
}

// PostStockTransfer posts a built stock transfer.
func (c *Client) PostStockTransfer(ctx context.Context, payload *StockTransferPayload) PostResult {
	return c.post(ctx, "StockTransfers", payload)
}

func (c *Client) post(ctx context.Context, resource string, payload interface{}) PostResult {
	if !c.ensureLoggedIn(ctx) {
		return PostResult{Error: "erp unavailable"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return PostResult{Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/b1s/v1/"+resource, bytes.NewReader(body))
	if err != nil {
		return PostResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	req.Header.Set("Cookie", "B1SESSION="+c.sessionID)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PostResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		if resp.StatusCode == http.StatusUnauthorized {
			c.resetSession()
		}
		data, _ := io.ReadAll(resp.Body)
		return PostResult{Error: fmt.Sprintf("erp returned %d: %s", resp.StatusCode, string(data))}
	}

	var result struct {
		DocEntry int `json:"DocEntry"`
		DocNum   int `json:"DocNum"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return PostResult{Error: fmt.Sprintf("failed to decode post response: %v", err)}
	}

	c.logger.Info().
		Str("resource", resource).
		Int("doc_entry", result.DocEntry).
		Int("doc_num", result.DocNum).
		Msg("document posted to erp")

	return PostResult{
		Success:        true,
		DocEntry:       result.DocEntry,
		DocumentNumber: strconv.Itoa(result.DocNum),
	}
}
