package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elonfeng/narradar/pkg/signal"
)

// trackedProgram is a well-known Solana program the adapter watches for
// activity spikes.
type trackedProgram struct {
	ID   string
	Name string
}

var defaultPrograms = []trackedProgram{
	{"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "Jupiter"},
	{"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc", "Orca Whirlpool"},
	{"TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN", "Tensor"},
	{"M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K", "Magic Eden"},
	{"metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s", "Metaplex"},
	{"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK", "Raydium CPMM"},
	{"jitoxjBo7s8g5M8ypYMYnCBRdwrgRxbgiWf21ZSwgGV", "Jito"},
	{"MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD", "Marinade"},
}

const (
	spikeTxThreshold  = 90   // signatures out of a 100-cap page
	tvlGrowthMinPct   = 10.0 // daily protocol TVL growth worth reporting
	authorityRPC      = 0.85 // direct chain observations
	authorityTVL      = 0.7  // aggregator-derived
	defiLlamaBase     = "https://api.llama.fi"
	mainnetPublicRPC  = "https://api.mainnet-beta.solana.com"
)

// OnChain collects Solana network, program, and DeFi activity signals.
type OnChain struct {
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	rpcURL   string
	llamaAPI string
	programs []trackedProgram
	now      func() time.Time
}

// NewOnChain creates the on-chain adapter. rpcURL may be empty, in which case
// the public mainnet endpoint is used.
func NewOnChain(rpcURL string, logger *zap.Logger) *OnChain {
	if rpcURL == "" {
		rpcURL = mainnetPublicRPC
	}
	return &OnChain{
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		logger:   logger.Named("onchain"),
		rpcURL:   rpcURL,
		llamaAPI: defiLlamaBase,
		programs: defaultPrograms,
		now:      time.Now,
	}
}

func (o *OnChain) Name() signal.Source { return signal.SourceOnChain }

func (o *OnChain) Collect(ctx context.Context, window signal.Window) (Result, error) {
	var res Result

	if sig, err := o.collectNetworkActivity(ctx); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("network activity: %v", err))
	} else if sig != nil {
		res.Signals = append(res.Signals, *sig)
	}

	for _, p := range o.programs {
		if err := o.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		sig, err := o.collectProgramActivity(ctx, p)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("program %s: %v", p.Name, err))
			continue
		}
		if sig != nil {
			res.Signals = append(res.Signals, *sig)
		}
	}

	defi, warns, err := o.collectDefiTrends(ctx)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("defi trends: %v", err))
	}
	res.Signals = append(res.Signals, defi...)

	// Total failure of both the RPC and the aggregator counts as the source
	// being down; partial data is returned with warnings otherwise.
	if len(res.Signals) == 0 && len(res.Warnings) > 0 {
		return Result{}, fmt.Errorf("no on-chain data fetched (%d failures): %w", len(res.Warnings), ErrSourceUnavailable)
	}

	return res, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (o *OnChain) rpcCall(ctx context.Context, method string, params, result any) error {
	body, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("call solana rpc: %w: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(signal.SourceOnChain, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc %s error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Result, result)
}

// collectNetworkActivity compares recent vs older TPS samples and emits a
// signal when throughput rose by more than 20%.
func (o *OnChain) collectNetworkActivity(ctx context.Context) (*signal.Signal, error) {
	var samples []struct {
		NumTransactions  float64 `json:"numTransactions"`
		SamplePeriodSecs float64 `json:"samplePeriodSecs"`
	}
	if err := o.rpcCall(ctx, "getRecentPerformanceSamples", []int{10}, &samples); err != nil {
		return nil, err
	}
	if len(samples) < 2 {
		return nil, nil
	}

	recent := samples[0].NumTransactions / math.Max(samples[0].SamplePeriodSecs, 1)
	older := samples[len(samples)-1].NumTransactions / math.Max(samples[len(samples)-1].SamplePeriodSecs, 1)
	if older <= 0 || recent <= older*1.2 {
		return nil, nil
	}

	growth := (recent/older - 1) * 100
	return &signal.Signal{
		ID:          "onchain:network-activity",
		Source:      signal.SourceOnChain,
		Type:        "network_activity",
		Subject:     "Solana network",
		Description: fmt.Sprintf("Network TPS increased by %.1f%%", growth),
		ObservedAt:  o.now().UTC(),
		RawMetric:   samples[0].NumTransactions,
		Authority:   authorityRPC,
		Data: map[string]any{
			"recent_tps": recent,
			"older_tps":  older,
		},
	}, nil
}

// collectProgramActivity fetches the latest signature page for a tracked
// program and emits a usage spike when it is near-full.
func (o *OnChain) collectProgramActivity(ctx context.Context, p trackedProgram) (*signal.Signal, error) {
	var sigs []struct {
		Signature string `json:"signature"`
	}
	params := []any{p.ID, map[string]any{"limit": 100}}
	if err := o.rpcCall(ctx, "getSignaturesForAddress", params, &sigs); err != nil {
		return nil, err
	}

	txCount := len(sigs)
	if txCount < spikeTxThreshold {
		return nil, nil
	}

	return &signal.Signal{
		ID:          "onchain:usage-spike:" + p.ID,
		Source:      signal.SourceOnChain,
		Type:        "usage_spike",
		Subject:     p.Name,
		Description: fmt.Sprintf("%s showing high activity (%d recent txs)", p.Name, txCount),
		ObservedAt:  o.now().UTC(),
		RawMetric:   float64(txCount),
		Authority:   authorityRPC,
		Data: map[string]any{
			"program_id":        p.ID,
			"program_name":      p.Name,
			"transaction_count": txCount,
		},
	}, nil
}

// collectDefiTrends pulls chain TVL and fast-growing Solana protocols from
// DefiLlama.
func (o *OnChain) collectDefiTrends(ctx context.Context) ([]signal.Signal, []string, error) {
	var out []signal.Signal
	var warnings []string

	var chains []struct {
		Name string  `json:"name"`
		TVL  float64 `json:"tvl"`
	}
	if err := o.getJSON(ctx, o.llamaAPI+"/v2/chains", &chains); err != nil {
		return nil, nil, err
	}
	for _, c := range chains {
		if c.Name != "Solana" {
			continue
		}
		out = append(out, signal.Signal{
			ID:          "onchain:defi-tvl",
			Source:      signal.SourceOnChain,
			Type:        "defi_tvl",
			Subject:     "Solana DeFi",
			Description: fmt.Sprintf("Solana DeFi TVL: $%.2fB", c.TVL/1e9),
			ObservedAt:  o.now().UTC(),
			RawMetric:   c.TVL,
			Authority:   authorityTVL,
			Data:        map[string]any{"tvl": c.TVL, "chain": "Solana"},
		})
		break
	}

	var protocols []struct {
		Name     string   `json:"name"`
		Slug     string   `json:"slug"`
		Chains   []string `json:"chains"`
		TVL      float64  `json:"tvl"`
		Change1d *float64 `json:"change_1d"`
		Change7d *float64 `json:"change_7d"`
	}
	if err := o.getJSON(ctx, o.llamaAPI+"/v2/protocols", &protocols); err != nil {
		warnings = append(warnings, fmt.Sprintf("protocols: %v", err))
		return out, warnings, nil
	}

	for _, p := range protocols {
		if p.Change1d == nil || *p.Change1d < tvlGrowthMinPct {
			continue
		}
		onSolana := false
		for _, chain := range p.Chains {
			if chain == "Solana" {
				onSolana = true
				break
			}
		}
		if !onSolana {
			continue
		}
		change7d := 0.0
		if p.Change7d != nil {
			change7d = *p.Change7d
		}
		out = append(out, signal.Signal{
			ID:          "onchain:defi-growth:" + p.Slug,
			Source:      signal.SourceOnChain,
			Type:        "defi_growth",
			Subject:     p.Name,
			Description: fmt.Sprintf("%s TVL up %.1f%% (24h)", p.Name, *p.Change1d),
			ObservedAt:  o.now().UTC(),
			RawMetric:   p.TVL,
			Authority:   authorityTVL,
			Data: map[string]any{
				"protocol":  p.Name,
				"tvl":       p.TVL,
				"change_1d": *p.Change1d,
				"change_7d": change7d,
			},
		})
	}

	return out, warnings, nil
}

func (o *OnChain) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w: %w", url, err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(signal.SourceOnChain, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
