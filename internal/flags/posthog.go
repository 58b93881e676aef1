package flags

import (
	"context"
	"fmt"

	"github.com/posthog/posthog-go"
)

// featureEvaluator はposthog.Clientのうち、フラグ評価に使う部分だけを切り出したものです。
type featureEvaluator interface {
	IsFeatureEnabled(payload posthog.FeatureFlagPayload) (interface{}, error)
}

// PostHogClient はPostHogでフラグを評価するClientです。
type PostHogClient struct {
	evaluator featureEvaluator
	closer    func() error
}

// NewPostHogClient はプロジェクトキーとホストからPostHogClientを作成します。
// personalKey を渡すとローカル評価が有効になります。
func NewPostHogClient(projectKey, host, personalKey string) (*PostHogClient, error) {
	if projectKey == "" {
		return nil, fmt.Errorf("posthog project key is required")
	}
	client, err := posthog.NewWithConfig(projectKey, posthog.Config{
		Endpoint:       host,
		PersonalApiKey: personalKey,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create posthog client: %w", err)
	}
	return &PostHogClient{evaluator: client, closer: client.Close}, nil
}

func newPostHogClientWith(evaluator featureEvaluator) *PostHogClient {
	return &PostHogClient{evaluator: evaluator}
}

// IsEnabled はフラグを評価します。posthog-go の呼び出しはcontextを受け取らないため、
// ゴルーチンで実行して ctx のキャンセルを待ちます。
func (p *PostHogClient) IsEnabled(ctx context.Context, flag, distinctID string) (bool, error) {
	type result struct {
		value interface{}
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := p.evaluator.IsFeatureEnabled(posthog.FeatureFlagPayload{
			Key:        flag,
			DistinctId: distinctID,
		})
		ch <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return false, fmt.Errorf("could not evaluate flag %q: %w", flag, res.err)
		}
		enabled, ok := res.value.(bool)
		if !ok {
			return false, fmt.Errorf("unexpected flag value for %q: %v", flag, res.value)
		}
		return enabled, nil
	}
}

// Close はPostHogクライアントを閉じ、送信待ちのイベントをフラッシュします。
func (p *PostHogClient) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
