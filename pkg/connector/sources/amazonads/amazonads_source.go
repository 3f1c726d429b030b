// Package amazonads implements a source connector for the Amazon Ads
// Sponsored Products v3 API.
//
// Entity streams (campaigns, ad groups, keywords, negative keywords,
// campaign negative keywords, product ads, targeting clauses) are read
// through the POST list endpoints with opaque nextToken pagination. Two
// derived streams (bid_recommendations, suggested_keywords) first drain
// the ad-groups stream and then issue one request per ad group.
package amazonads

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/base"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	jsonpool "github.com/parallaxworks/parallax/pkg/json"
	"github.com/parallaxworks/parallax/pkg/metrics"
	"github.com/parallaxworks/parallax/pkg/pool"
	stringpool "github.com/parallaxworks/parallax/pkg/strings"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// lwaTokenURL is the Login with Amazon token endpoint used to exchange
// the refresh token for access tokens.
const lwaTokenURL = "https://api.amazon.com/auth/o2/token"

// regionHosts maps the supported Amazon Ads API regions to their hosts.
var regionHosts = map[string]string{
	"NA": "https://advertising-api.amazon.com",
	"EU": "https://advertising-api-eu.amazon.com",
	"FE": "https://advertising-api-fe.amazon.com",
}

// streamDef describes one Sponsored Products list endpoint: where it
// lives, which response field carries the entities, the versioned media
// type the API requires on Accept/Content-Type, and the entity key used
// for record identity.
type streamDef struct {
	name       string
	path       string
	dataField  string
	mediaType  string
	primaryKey string
}

// listStreams enumerates the plain paginated list streams in sync order.
var listStreams = []streamDef{
	{name: "campaigns", path: "sp/campaigns/list", dataField: "campaigns", mediaType: "application/vnd.spCampaign.v3+json", primaryKey: "campaignId"},
	{name: "ad_groups", path: "sp/adGroups/list", dataField: "adGroups", mediaType: "application/vnd.spAdGroup.v3+json", primaryKey: "adGroupId"},
	{name: "keywords", path: "sp/keywords/list", dataField: "keywords", mediaType: "application/vnd.spKeyword.v3+json", primaryKey: "keywordId"},
	{name: "negative_keywords", path: "sp/negativeKeywords/list", dataField: "negativeKeywords", mediaType: "application/vnd.spNegativeKeyword.v3+json", primaryKey: "keywordId"},
	{name: "campaign_negative_keywords", path: "sp/campaignNegativeKeywords/list", dataField: "campaignNegativeKeywords", mediaType: "application/vnd.spCampaignNegativeKeyword.v3+json", primaryKey: "keywordId"},
	{name: "product_ads", path: "sp/productAds/list", dataField: "productAds", mediaType: "application/vnd.spProductAd.v3+json", primaryKey: "adId"},
	{name: "targets", path: "sp/targets/list", dataField: "targetingClauses", mediaType: "application/vnd.spTargetingClause.v3+json", primaryKey: "targetId"},
}

// Derived streams issue one request per ad group instead of paginating.
const (
	streamBidRecommendations = "bid_recommendations"
	streamSuggestedKeywords  = "suggested_keywords"

	bidRecommendationsPath      = "sp/targets/bid/recommendations"
	bidRecommendationsMediaType = "application/vnd.spthemebasedbidrecommendation.v4+json"
	bidRecommendationsDataField = "bidRecommendations"

	suggestedKeywordsMediaType = "application/json"
	maxKeywordSuggestions      = 100
)

// AmazonAdsSource is a production-ready Amazon Ads source connector using BaseConnector
type AmazonAdsSource struct {
	*base.BaseConnector

	// Amazon Ads API configuration
	config       *AmazonAdsConfig
	httpClient   *http.Client
	oauth2Config *oauth2.Config
	accessToken  string
	tokenExpiry  time.Time

	// API settings
	endpoint string
	pageSize int
	streams  []string

	// Schema and state
	schema           *core.Schema
	currentStream    string
	lastNextToken    string
	processedRecords int64
	isComplete       bool
}

// AmazonAdsConfig holds Amazon Ads API configuration extracted from the
// base config credentials.
type AmazonAdsConfig struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RefreshToken string   `json:"refresh_token"`
	ProfileID    string   `json:"profile_id"`
	Region       string   `json:"region"`
	Endpoint     string   `json:"endpoint,omitempty"`
	AuthURL      string   `json:"auth_url,omitempty"`
	Streams      []string `json:"streams,omitempty"`
	StateFilter  []string `json:"state_filter,omitempty"`
	PageSize     int      `json:"page_size"`
	MaxPages     int      `json:"max_pages"`
}

// listRequest is the JSON body for the v3 list endpoints.
type listRequest struct {
	MaxResults  int          `json:"maxResults"`
	NextToken   string       `json:"nextToken,omitempty"`
	StateFilter *stateFilter `json:"stateFilter,omitempty"`
}

type stateFilter struct {
	Include []string `json:"include"`
}

// bidRecommendationRequest is the per-ad-group body for the theme-based
// bid recommendations endpoint.
type bidRecommendationRequest struct {
	TargetingExpressions []targetingExpression `json:"targetingExpressions"`
	AdGroupID            string                `json:"adGroupId"`
	CampaignID           string                `json:"campaignId"`
	RecommendationType   string                `json:"recommendationType"`
}

type targetingExpression struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// listPage is one decoded page of a list stream. skipped marks pages the
// API answered with a tolerated error status.
type listPage struct {
	records    []map[string]interface{}
	nextToken  string
	skipped    bool
	statusCode int
}

// adGroupSlice carries the ad group context the derived streams fan out
// over.
type adGroupSlice struct {
	adGroupID  string
	campaignID string
}

// NewAmazonAdsSource creates a new Amazon Ads source connector
func NewAmazonAdsSource(name string, config *config.BaseConfig) (core.Source, error) {
	// Create base connector with production features
	base := base.NewBaseConnector("amazon-ads", core.ConnectorTypeSource, "1.0.0")

	source := &AmazonAdsSource{
		BaseConnector: base,
		pageSize:      100, // Default page size
	}

	return source, nil
}

// Initialize initializes the Amazon Ads source connector
func (s *AmazonAdsSource) Initialize(ctx context.Context, config *config.BaseConfig) error {
	// Initialize base connector first (circuit breakers, rate limiting, health checks)
	if err := s.BaseConnector.Initialize(ctx, config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}

	// Validate and extract configuration
	if err := s.validateAndExtractConfig(config); err != nil {
		return err
	}

	// Obtain the first access token through the circuit breaker so a dead
	// LWA endpoint is surfaced during startup
	s.initializeOAuth2Client(config.Timeouts.Request)
	if err := s.ExecuteWithCircuitBreaker(func() error {
		return s.refreshAccessToken(ctx)
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to initialize authentication")
	}

	s.discoverSchema()

	// Periodic health checks verify the token can still be refreshed
	s.SetHealthCheck(s.Health)

	// Update health status
	s.UpdateHealth(true, map[string]interface{}{
		"oauth2_configured": true,
		"profile_id":        s.config.ProfileID,
		"region":            s.config.Region,
		"streams":           s.streams,
	})

	s.GetLogger().Info("Amazon Ads source initialized successfully",
		zap.String("profile_id", s.config.ProfileID),
		zap.String("region", s.config.Region),
		zap.Strings("streams", s.streams),
		zap.Int("page_size", s.pageSize))

	return nil
}

// validateAndExtractConfig validates and extracts Amazon Ads configuration
func (s *AmazonAdsSource) validateAndExtractConfig(config *config.BaseConfig) error {
	if config == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}

	properties := config.Security.Credentials
	if properties == nil {
		return errors.New(errors.ErrorTypeConfig, "credentials are required")
	}

	adsConfig := &AmazonAdsConfig{}

	if clientID, ok := properties["client_id"]; ok && clientID != "" {
		adsConfig.ClientID = clientID
	} else {
		return errors.New(errors.ErrorTypeConfig, "client_id is required")
	}

	if clientSecret, ok := properties["client_secret"]; ok && clientSecret != "" {
		adsConfig.ClientSecret = clientSecret
	} else {
		return errors.New(errors.ErrorTypeConfig, "client_secret is required")
	}

	if refreshToken, ok := properties["refresh_token"]; ok && refreshToken != "" {
		adsConfig.RefreshToken = refreshToken
	} else {
		return errors.New(errors.ErrorTypeConfig, "refresh_token is required")
	}

	if profileID, ok := properties["profile_id"]; ok && profileID != "" {
		adsConfig.ProfileID = profileID
	} else {
		return errors.New(errors.ErrorTypeConfig, "profile_id is required")
	}

	// Region selects the API host unless an explicit endpoint is given
	adsConfig.Region = "NA"
	if region, ok := properties["region"]; ok && region != "" {
		adsConfig.Region = strings.ToUpper(stringpool.TrimSpace(region))
	}
	host, ok := regionHosts[adsConfig.Region]
	if !ok {
		return errors.New(errors.ErrorTypeConfig,
			stringpool.Sprintf("unsupported region %q (expected NA, EU or FE)", adsConfig.Region))
	}
	if endpoint, ok := properties["endpoint"]; ok && endpoint != "" {
		host = strings.TrimSuffix(endpoint, "/")
		adsConfig.Endpoint = host
	}

	if authURL, ok := properties["auth_url"]; ok && authURL != "" {
		adsConfig.AuthURL = authURL
	}

	// Streams - comma-separated subset of the known stream names
	if streamsStr, ok := properties["streams"]; ok && streamsStr != "" {
		adsConfig.Streams = stringpool.Split(streamsStr, ",")
		for i, name := range adsConfig.Streams {
			adsConfig.Streams[i] = stringpool.TrimSpace(name)
		}
		for _, name := range adsConfig.Streams {
			if !knownStream(name) {
				return errors.New(errors.ErrorTypeConfig,
					stringpool.Sprintf("unknown stream %q", name))
			}
		}
	}

	// State filter - comma-separated entity states for the list bodies
	if statesStr, ok := properties["state_filter"]; ok && statesStr != "" {
		adsConfig.StateFilter = stringpool.Split(statesStr, ",")
		for i, state := range adsConfig.StateFilter {
			adsConfig.StateFilter[i] = strings.ToUpper(stringpool.TrimSpace(state))
		}
	}

	// Optional fields with defaults
	adsConfig.PageSize = config.Performance.GetPageSize()
	if pageSizeStr, ok := properties["page_size"]; ok && pageSizeStr != "" {
		pageSize, err := strconv.Atoi(pageSizeStr)
		if err != nil || pageSize <= 0 {
			return errors.New(errors.ErrorTypeConfig,
				stringpool.Sprintf("invalid page_size %q", pageSizeStr))
		}
		adsConfig.PageSize = pageSize
	}

	if maxPagesStr, ok := properties["max_pages"]; ok && maxPagesStr != "" {
		maxPages, err := strconv.Atoi(maxPagesStr)
		if err != nil || maxPages < 0 {
			return errors.New(errors.ErrorTypeConfig,
				stringpool.Sprintf("invalid max_pages %q", maxPagesStr))
		}
		adsConfig.MaxPages = maxPages
	}

	// Store configuration
	s.config = adsConfig
	s.endpoint = host
	s.pageSize = adsConfig.PageSize
	s.streams = adsConfig.Streams
	if len(s.streams) == 0 {
		s.streams = allStreamNames()
	}

	return nil
}

// initializeOAuth2Client configures the LWA refresh-token flow
func (s *AmazonAdsSource) initializeOAuth2Client(requestTimeout time.Duration) {
	tokenURL := lwaTokenURL
	if s.config.AuthURL != "" {
		tokenURL = s.config.AuthURL
	}

	s.oauth2Config = &oauth2.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: tokenURL,
		},
	}

	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	s.httpClient = &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// refreshAccessToken obtains a new access token using the refresh token
func (s *AmazonAdsSource) refreshAccessToken(ctx context.Context) error {
	// Apply rate limiting
	if err := s.RateLimit(ctx); err != nil {
		return err
	}

	token := &oauth2.Token{
		RefreshToken: s.config.RefreshToken,
	}

	tokenSource := s.oauth2Config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		// A response from the token endpoint means the grant was
		// rejected; anything else is a transport failure and retryable.
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			return errors.Wrap(err, errors.ErrorTypeAuthentication, "token endpoint rejected refresh")
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach token endpoint")
	}

	s.accessToken = newToken.AccessToken
	s.tokenExpiry = newToken.Expiry

	s.GetLogger().Debug("Access token refreshed successfully")
	return nil
}

// ensureAccessToken refreshes the cached token shortly before it
// expires. Mid-sync refreshes go through the retry policy: transport
// failures retry, a rejected grant fails at once.
func (s *AmazonAdsSource) ensureAccessToken(ctx context.Context) error {
	if s.accessToken != "" {
		if s.tokenExpiry.IsZero() || time.Until(s.tokenExpiry) > time.Minute {
			return nil
		}
	}
	return s.ExecuteWithRetry(ctx, func() error {
		return s.refreshAccessToken(ctx)
	})
}

// Discover implements schema discovery for the Amazon Ads API
func (s *AmazonAdsSource) Discover(ctx context.Context) (*core.Schema, error) {
	if s.schema == nil {
		s.discoverSchema()
	}
	return s.schema, nil
}

// discoverSchema builds a schema describing the enabled streams. Entities
// keep the API field names; the stream a record belongs to travels in the
// record metadata.
func (s *AmazonAdsSource) discoverSchema() {
	schema := &core.Schema{
		Name:        "amazon_ads_sponsored_products",
		Description: "Amazon Ads Sponsored Products v3 entities",
		Fields:      make([]core.Field, 0, len(s.streams)),
	}

	for _, name := range s.streams {
		schema.Fields = append(schema.Fields, core.Field{
			Name:        name,
			Type:        core.FieldTypeJSON,
			Description: stringpool.Sprintf("Amazon Ads stream: %s", name),
			Nullable:    true,
		})
	}

	s.schema = schema
}

// Read implements streaming read with backpressure support
func (s *AmazonAdsSource) Read(ctx context.Context) (*core.RecordStream, error) {
	if s.config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connector not initialized")
	}

	recordsChan := make(chan *pool.Record, s.pageSize)
	errorsChan := make(chan error, 10)

	stream := &core.RecordStream{
		Records: recordsChan,
		Errors:  errorsChan,
	}

	// Start reading in background goroutine
	go func() {
		defer close(recordsChan)
		defer close(errorsChan)

		if err := s.readRecords(ctx, recordsChan); err != nil {
			errorsChan <- err
		}
	}()

	return stream, nil
}

// ReadBatch implements batch reading for better performance
func (s *AmazonAdsSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	if s.config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connector not initialized")
	}

	batchesChan := make(chan []*pool.Record, 10)
	errorsChan := make(chan error, 10)

	stream := &core.BatchStream{
		Batches: batchesChan,
		Errors:  errorsChan,
	}

	// Start reading in background goroutine
	go func() {
		defer close(batchesChan)
		defer close(errorsChan)

		if err := s.readBatches(ctx, batchSize, batchesChan); err != nil {
			errorsChan <- err
		}
	}()

	return stream, nil
}

// readRecords syncs the enabled streams in order. Streams are read
// sequentially with one request in flight at a time; a hard API failure
// aborts the sync while tolerated statuses only skip their stream.
func (s *AmazonAdsSource) readRecords(ctx context.Context, recordsChan chan<- *pool.Record) error {
	s.isComplete = false

	for _, name := range s.streams {
		s.currentStream = name
		s.lastNextToken = ""

		var err error
		switch name {
		case streamBidRecommendations:
			err = s.readBidRecommendations(ctx, recordsChan)
		case streamSuggestedKeywords:
			err = s.readSuggestedKeywords(ctx, recordsChan)
		default:
			err = s.readListStream(ctx, streamByName(name), recordsChan)
		}
		if err != nil {
			return err
		}
	}

	s.isComplete = true
	return nil
}

// readBatches reads records in batches for better performance
func (s *AmazonAdsSource) readBatches(ctx context.Context, batchSize int, batchesChan chan<- []*pool.Record) error {
	// Collect individual records through a temporary channel
	recordsChan := make(chan *pool.Record, s.pageSize)
	errorsChan := make(chan error, 1)

	go func() {
		defer close(recordsChan)
		defer close(errorsChan)
		if err := s.readRecords(ctx, recordsChan); err != nil {
			errorsChan <- err
		}
	}()

	batch := pool.GetBatchSlice(batchSize)
	for record := range recordsChan {
		batch = append(batch, record)

		if len(batch) >= batchSize {
			// Ownership of a sent batch moves to the consumer
			select {
			case batchesChan <- batch:
				// Let observed throughput steer the next batch size.
				batchSize = s.OptimizeBatchSize(batchSize)
				batch = pool.GetBatchSlice(batchSize)
			case <-ctx.Done():
				pool.PutBatchSlice(batch)
				return ctx.Err()
			}
		}
	}

	// Send remaining records in final batch
	if len(batch) > 0 {
		select {
		case batchesChan <- batch:
		case <-ctx.Done():
			pool.PutBatchSlice(batch)
			return ctx.Err()
		}
	} else {
		pool.PutBatchSlice(batch)
	}

	if err := <-errorsChan; err != nil {
		return err
	}
	return nil
}

// readListStream paginates one list endpoint until the response carries
// no continuation token
func (s *AmazonAdsSource) readListStream(ctx context.Context, def streamDef, recordsChan chan<- *pool.Record) error {
	nextToken := ""

	for page := 0; ; page++ {
		// Apply rate limiting before each API call
		if err := s.RateLimit(ctx); err != nil {
			return err
		}

		// Execute API call with circuit breaker protection
		var resp *listPage
		if err := s.ExecuteWithCircuitBreaker(func() error {
			var err error
			resp, err = s.fetchListPage(ctx, def, nextToken)
			return err
		}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection,
				stringpool.Sprintf("list request failed for stream %s", def.name))
		}

		if resp.skipped {
			metrics.PagesFetched.WithLabelValues(def.name, "skipped").Inc()
			break
		}
		metrics.PagesFetched.WithLabelValues(def.name, "success").Inc()

		// Process response records
		for _, entity := range resp.records {
			record := s.convertToRecord(def.name, def.primaryKey, entity)

			select {
			case recordsChan <- record:
				s.processedRecords++
			case <-ctx.Done():
				record.Release()
				return ctx.Err()
			}
		}

		// Check for more pages
		s.lastNextToken = resp.nextToken
		if resp.nextToken == "" {
			break
		}
		nextToken = resp.nextToken

		if s.config.MaxPages > 0 && page+1 >= s.config.MaxPages {
			break
		}

		// Update progress
		s.ReportProgress(s.processedRecords, 0)
	}

	return nil
}

// fetchListPage issues one POST list request and decodes the page.
// Tolerated error statuses return a skipped page instead of an error.
func (s *AmazonAdsSource) fetchListPage(ctx context.Context, def streamDef, nextToken string) (*listPage, error) {
	body := &listRequest{
		MaxResults: s.pageSize,
		NextToken:  nextToken,
	}
	if len(s.config.StateFilter) > 0 {
		body.StateFilter = &stateFilter{Include: s.config.StateFilter}
	}

	status, respBody, err := s.doRequest(ctx, http.MethodPost, def.path, def.mediaType, body)
	if err != nil {
		return nil, err
	}

	if status >= 200 && status < 300 {
		var decoded map[string]interface{}
		if err := jsonpool.Unmarshal(stringpool.StringToBytes(respBody), &decoded); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode API response")
		}

		page := &listPage{statusCode: status}
		if token, ok := decoded["nextToken"].(string); ok {
			page.nextToken = token
		}
		if items, ok := decoded[def.dataField].([]interface{}); ok {
			page.records = make([]map[string]interface{}, 0, len(items))
			for _, item := range items {
				if entity, ok := item.(map[string]interface{}); ok {
					page.records = append(page.records, entity)
				}
			}
		}
		return page, nil
	}

	if toleratedStatus(status) {
		s.GetLogger().Warn("Skipping stream due to tolerated API response",
			zap.String("stream", def.name),
			zap.Int("status", status),
			zap.String("profile_id", s.config.ProfileID),
			zap.String("response", respBody))
		metrics.RecordsSkipped.WithLabelValues(def.name, statusReason(status)).Inc()
		return &listPage{skipped: true, statusCode: status}, nil
	}

	return nil, errors.New(errors.ErrorTypeConnection,
		stringpool.Sprintf("API returned status %d for %s: %s", status, def.path, respBody))
}

// fetchAdGroupSlices drains the ad-groups stream fully and returns the
// ad group contexts the derived streams iterate over
func (s *AmazonAdsSource) fetchAdGroupSlices(ctx context.Context) ([]adGroupSlice, error) {
	def := streamByName("ad_groups")
	slices := make([]adGroupSlice, 0, s.pageSize)
	nextToken := ""

	for page := 0; ; page++ {
		if err := s.RateLimit(ctx); err != nil {
			return nil, err
		}

		var resp *listPage
		if err := s.ExecuteWithCircuitBreaker(func() error {
			var err error
			resp, err = s.fetchListPage(ctx, def, nextToken)
			return err
		}); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "ad group listing failed")
		}

		if resp.skipped {
			break
		}

		for _, entity := range resp.records {
			slice := adGroupSlice{
				adGroupID:  idString(entity["adGroupId"]),
				campaignID: idString(entity["campaignId"]),
			}
			if slice.adGroupID == "" {
				continue
			}
			slices = append(slices, slice)
		}

		if resp.nextToken == "" {
			break
		}
		nextToken = resp.nextToken

		if s.config.MaxPages > 0 && page+1 >= s.config.MaxPages {
			break
		}
	}

	return slices, nil
}

// readBidRecommendations fans out one theme-based bid recommendation
// request per known ad group. Ad groups the API rejects with a tolerated
// status (manual targeting, no asins, no associated bid) are skipped.
func (s *AmazonAdsSource) readBidRecommendations(ctx context.Context, recordsChan chan<- *pool.Record) error {
	slices, err := s.fetchAdGroupSlices(ctx)
	if err != nil {
		return err
	}

	for _, slice := range slices {
		if err := s.RateLimit(ctx); err != nil {
			return err
		}

		body := &bidRecommendationRequest{
			TargetingExpressions: []targetingExpression{
				{Type: "KEYWORD_BROAD_MATCH", Value: "hello"},
			},
			AdGroupID:          slice.adGroupID,
			CampaignID:         slice.campaignID,
			RecommendationType: "BIDS_FOR_EXISTING_AD_GROUP",
		}

		var status int
		var respBody string
		if err := s.ExecuteWithCircuitBreaker(func() error {
			var err error
			status, respBody, err = s.doRequest(ctx, http.MethodPost, bidRecommendationsPath, bidRecommendationsMediaType, body)
			return err
		}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection,
				stringpool.Sprintf("bid recommendation request failed for ad group %s", slice.adGroupID))
		}

		if status >= 200 && status < 300 {
			var decoded map[string]interface{}
			if err := jsonpool.Unmarshal(stringpool.StringToBytes(respBody), &decoded); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to decode bid recommendation response")
			}

			items, _ := decoded[bidRecommendationsDataField].([]interface{})
			for _, item := range items {
				entity, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				// Carry the slicing context on each record
				entity["adGroupId"] = slice.adGroupID
				entity["campaignId"] = slice.campaignID

				record := s.convertToRecord(streamBidRecommendations, "", entity)
				select {
				case recordsChan <- record:
					s.processedRecords++
				case <-ctx.Done():
					record.Release()
					return ctx.Err()
				}
			}
			metrics.PagesFetched.WithLabelValues(streamBidRecommendations, "success").Inc()
			continue
		}

		if toleratedStatus(status) {
			s.GetLogger().Warn("Skipping ad group for bid recommendations",
				zap.String("ad_group_id", slice.adGroupID),
				zap.Int("status", status),
				zap.String("profile_id", s.config.ProfileID),
				zap.String("response", respBody))
			metrics.RecordsSkipped.WithLabelValues(streamBidRecommendations, statusReason(status)).Inc()
			continue
		}

		return errors.New(errors.ErrorTypeConnection,
			stringpool.Sprintf("API returned status %d for %s: %s", status, bidRecommendationsPath, respBody))
	}

	return nil
}

// readSuggestedKeywords fans out one v2 suggested keywords request per
// known ad group
func (s *AmazonAdsSource) readSuggestedKeywords(ctx context.Context, recordsChan chan<- *pool.Record) error {
	slices, err := s.fetchAdGroupSlices(ctx)
	if err != nil {
		return err
	}

	maxSuggestions := s.pageSize
	if maxSuggestions > maxKeywordSuggestions {
		maxSuggestions = maxKeywordSuggestions
	}

	for _, slice := range slices {
		if err := s.RateLimit(ctx); err != nil {
			return err
		}

		path := stringpool.Sprintf("v2/sp/adGroups/%s/suggested/keywords?maxNumSuggestions=%d",
			slice.adGroupID, maxSuggestions)

		var status int
		var respBody string
		if err := s.ExecuteWithCircuitBreaker(func() error {
			var err error
			status, respBody, err = s.doRequest(ctx, http.MethodGet, path, suggestedKeywordsMediaType, nil)
			return err
		}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection,
				stringpool.Sprintf("suggested keywords request failed for ad group %s", slice.adGroupID))
		}

		if status >= 200 && status < 300 {
			entities, err := decodeSuggestedKeywords(respBody)
			if err != nil {
				return err
			}
			for _, entity := range entities {
				entity["adGroupId"] = slice.adGroupID

				record := s.convertToRecord(streamSuggestedKeywords, "", entity)
				select {
				case recordsChan <- record:
					s.processedRecords++
				case <-ctx.Done():
					record.Release()
					return ctx.Err()
				}
			}
			metrics.PagesFetched.WithLabelValues(streamSuggestedKeywords, "success").Inc()
			continue
		}

		if toleratedStatus(status) {
			s.GetLogger().Warn("Skipping ad group for suggested keywords",
				zap.String("ad_group_id", slice.adGroupID),
				zap.Int("status", status),
				zap.String("profile_id", s.config.ProfileID),
				zap.String("response", respBody))
			metrics.RecordsSkipped.WithLabelValues(streamSuggestedKeywords, statusReason(status)).Inc()
			continue
		}

		return errors.New(errors.ErrorTypeConnection,
			stringpool.Sprintf("API returned status %d for ad group %s: %s", status, slice.adGroupID, respBody))
	}

	return nil
}

// decodeSuggestedKeywords accepts both response shapes of the v2
// endpoint: a bare array of suggestions or a single wrapping object
func decodeSuggestedKeywords(respBody string) ([]map[string]interface{}, error) {
	trimmed := stringpool.TrimSpace(respBody)
	if trimmed == "" {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []map[string]interface{}
		if err := jsonpool.Unmarshal(stringpool.StringToBytes(trimmed), &items); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode suggested keywords response")
		}
		return items, nil
	}

	var entity map[string]interface{}
	if err := jsonpool.Unmarshal(stringpool.StringToBytes(trimmed), &entity); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode suggested keywords response")
	}
	return []map[string]interface{}{entity}, nil
}

// doRequest sends one API request with the stream's media type on
// Accept/Content-Type plus the profile scope headers, and returns the
// status code and response body. Non-2xx statuses are returned to the
// caller for dispatch, not turned into errors here.
func (s *AmazonAdsSource) doRequest(ctx context.Context, method, path, mediaType string, body interface{}) (int, string, error) {
	if err := s.ensureAccessToken(ctx); err != nil {
		return 0, "", err
	}

	// Build request URL using URLBuilder for optimized string handling
	ub := stringpool.NewURLBuilder(s.endpoint)
	defer ub.Close()
	pathAndQuery := stringpool.Split(path, "?")
	ub.AddPath(stringpool.Split(pathAndQuery[0], "/")...)
	url := ub.String()
	if len(pathAndQuery) > 1 {
		url = stringpool.Sprintf("%s?%s", url, pathAndQuery[1])
	}

	// Serialize request body directly to pooled buffer
	var reader io.Reader
	if body != nil {
		requestBuffer := stringpool.GetBuilder(stringpool.Small)
		defer stringpool.PutBuilder(requestBuffer, stringpool.Small)

		if err := jsonpool.MarshalToWriter(requestBuffer, body); err != nil {
			return 0, "", errors.Wrap(err, errors.ErrorTypeData, "failed to marshal request body")
		}
		reader = strings.NewReader(requestBuffer.String())
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to create HTTP request")
	}

	// Set headers
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Amazon-Advertising-API-ClientId", s.config.ClientID)
	req.Header.Set("Amazon-Advertising-API-Scope", s.config.ProfileID)
	req.Header.Set("Authorization", stringpool.Sprintf("Bearer %s", s.accessToken))

	// Make request
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeConnection, "HTTP request failed")
	}
	defer resp.Body.Close()

	// Read response body into pooled buffer
	responseBuffer := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(responseBuffer, stringpool.Medium)

	if _, err := io.Copy(responseBuffer, resp.Body); err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeData, "failed to read response body")
	}

	return resp.StatusCode, stringpool.Clone(responseBuffer.String()), nil
}

// convertToRecord converts one API entity into a pooled record
func (s *AmazonAdsSource) convertToRecord(stream, primaryKey string, entity map[string]interface{}) *pool.Record {
	// Get record from memory pool
	record := pool.NewRecordFromPool("amazon-ads")

	for key, value := range entity {
		record.SetData(key, value)
	}

	// Set record properties
	if id := idString(entity[primaryKey]); id != "" {
		record.ID = stringpool.Sprintf("%s_%s", stream, id)
	} else {
		record.ID = stringpool.Sprintf("%s_%d", stream, time.Now().UnixNano())
	}
	record.Metadata.Source = "amazon-ads"
	record.SetStreamID(stream)
	record.SetMetadata("profile_id", s.config.ProfileID)
	record.SetMetadata("extracted_at", time.Now().Unix())
	record.SetTimestamp(time.Now())

	return record
}

// Close closes the Amazon Ads source connector
func (s *AmazonAdsSource) Close(ctx context.Context) error {
	s.GetLogger().Info("Closing Amazon Ads source connector")

	if s.httpClient != nil {
		s.httpClient.CloseIdleConnections()
	}

	// Close base connector
	return s.BaseConnector.Close(ctx)
}

// AmazonAdsPosition implements core.Position for Amazon Ads
type AmazonAdsPosition struct {
	Stream           string `json:"stream"`
	NextToken        string `json:"next_token"`
	ProcessedRecords int64  `json:"processed_records"`
}

func (p *AmazonAdsPosition) String() string {
	return stringpool.Sprintf("stream:%s,token:%s,records:%d", p.Stream, p.NextToken, p.ProcessedRecords)
}

func (p *AmazonAdsPosition) Compare(other core.Position) int {
	if otherPos, ok := other.(*AmazonAdsPosition); ok {
		if p.ProcessedRecords < otherPos.ProcessedRecords {
			return -1
		} else if p.ProcessedRecords > otherPos.ProcessedRecords {
			return 1
		}
		return 0
	}
	return 0
}

// GetPosition returns the current position (stream and continuation token)
func (s *AmazonAdsSource) GetPosition() core.Position {
	return &AmazonAdsPosition{
		Stream:           s.currentStream,
		NextToken:        s.lastNextToken,
		ProcessedRecords: s.processedRecords,
	}
}

// SetPosition sets the position
func (s *AmazonAdsSource) SetPosition(position core.Position) error {
	if adsPos, ok := position.(*AmazonAdsPosition); ok {
		s.currentStream = adsPos.Stream
		s.lastNextToken = adsPos.NextToken
		s.processedRecords = adsPos.ProcessedRecords
	}
	return nil
}

// GetState returns the current state
func (s *AmazonAdsSource) GetState() core.State {
	return core.State{
		"streams":           s.streams,
		"current_stream":    s.currentStream,
		"next_token":        s.lastNextToken,
		"processed_records": s.processedRecords,
		"is_complete":       s.isComplete,
	}
}

// SetState sets the state
func (s *AmazonAdsSource) SetState(state core.State) error {
	if streams, ok := state["streams"].([]string); ok {
		s.streams = streams
	}
	if stream, ok := state["current_stream"].(string); ok {
		s.currentStream = stream
	}
	if token, ok := state["next_token"].(string); ok {
		s.lastNextToken = token
	}
	if records, ok := state["processed_records"].(int64); ok {
		s.processedRecords = records
	}
	if complete, ok := state["is_complete"].(bool); ok {
		s.isComplete = complete
	}
	return nil
}

// SupportsIncremental returns true if incremental sync is supported
func (s *AmazonAdsSource) SupportsIncremental() bool {
	return false // The list endpoints expose no cursor; every sync is a full refresh
}

// SupportsBatch returns true if batch operations are supported
func (s *AmazonAdsSource) SupportsBatch() bool {
	return true
}

// Health performs health check
func (s *AmazonAdsSource) Health(ctx context.Context) error {
	if s.accessToken == "" {
		return errors.New(errors.ErrorTypeAuthentication, "no access token available")
	}

	// Try to refresh the token to verify the LWA endpoint is reachable
	return s.refreshAccessToken(ctx)
}

// Metrics returns connector metrics
func (s *AmazonAdsSource) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"type":              "amazon-ads",
		"streams":           len(s.streams),
		"processed_records": s.processedRecords,
		"current_stream":    s.currentStream,
		"page_size":         s.pageSize,
		"is_complete":       s.isComplete,
	}
}

// knownStream reports whether name is a list or derived stream
func knownStream(name string) bool {
	if name == streamBidRecommendations || name == streamSuggestedKeywords {
		return true
	}
	for _, def := range listStreams {
		if def.name == name {
			return true
		}
	}
	return false
}

// streamByName returns the list stream definition for name
func streamByName(name string) streamDef {
	for _, def := range listStreams {
		if def.name == name {
			return def
		}
	}
	return streamDef{}
}

// allStreamNames returns every stream in sync order, list streams first
func allStreamNames() []string {
	names := make([]string, 0, len(listStreams)+2)
	for _, def := range listStreams {
		names = append(names, def.name)
	}
	names = append(names, streamBidRecommendations, streamSuggestedKeywords)
	return names
}

// toleratedStatus reports whether the API status means "this resource
// does not support the request" rather than a hard failure
func toleratedStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func statusReason(status int) string {
	return stringpool.Sprintf("http_%d", status)
}

// idString renders an entity identifier that the API may return as a
// string or a JSON number
func idString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}
