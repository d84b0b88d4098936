package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	quoteBaseURL  = "https://query1.finance.yahoo.com/v7/finance/quote"
	quoteCacheTTL = 60 * time.Second
)

type stockArgs struct {
	Query string `json:"query"`
}

type stockQuote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Company   string  `json:"company"`
	ChangePct float64 `json:"change"`
	Volume    int64   `json:"volume"`
	MarketCap int64   `json:"market_cap"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			Currency                   string  `json:"currency"`
			LongName                   string  `json:"longName"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			RegularMarketVolume        int64   `json:"regularMarketVolume"`
			MarketCap                  int64   `json:"marketCap"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func newStockTool(httpClient *http.Client, cache *redis.Client, log *slog.Logger) tool {
	def := functionDef(
		"query_stock_price",
		"Query real-time stock price information for a given company or symbol.",
		`{"type":"object","properties":{"query":{"type":"string","description":"The stock symbol or company name to query"}},"required":["query"]}`,
	)

	return tool{
		def: def,
		run: func(ctx context.Context, args json.RawMessage, _ Poster) (any, error) {
			var a stockArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(a.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			symbol := strings.ToUpper(strings.Fields(a.Query)[0])

			if cache != nil {
				if cached, err := cache.Get(ctx, "quote:"+symbol).Bytes(); err == nil {
					var q stockQuote
					if json.Unmarshal(cached, &q) == nil {
						log.Debug("quote cache hit", "symbol", symbol)
						return q, nil
					}
				}
			}

			q, err := fetchQuote(ctx, httpClient, symbol)
			if err != nil {
				return nil, err
			}

			if cache != nil {
				if data, err := json.Marshal(q); err == nil {
					if err := cache.Set(ctx, "quote:"+symbol, data, quoteCacheTTL).Err(); err != nil {
						log.Warn("quote cache write failed", "symbol", symbol, "error", err)
					}
				}
			}
			return q, nil
		},
	}
}

func fetchQuote(ctx context.Context, client *http.Client, symbol string) (*stockQuote, error) {
	u := quoteBaseURL + "?symbols=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote api status %d", resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if len(parsed.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote found for %s", symbol)
	}

	r := parsed.QuoteResponse.Result[0]
	company := r.LongName
	if company == "" {
		company = r.Symbol
	}
	return &stockQuote{
		Symbol:    r.Symbol,
		Price:     r.RegularMarketPrice,
		Currency:  r.Currency,
		Company:   company,
		ChangePct: r.RegularMarketChangePercent,
		Volume:    r.RegularMarketVolume,
		MarketCap: r.MarketCap,
	}, nil
}
