// Package flags はフィーチャーフラグの評価を扱います。
//
// Client が外部のフラグサービスを表し、Resolver がリクエストから distinct id を取り出して
// 並び替え機能の有効/無効を決めます。
package flags

import (
	"context"
	"errors"
)

// ErrUnavailable はフラグサービスに問い合わせできない場合のエラーです。
var ErrUnavailable = errors.New("flag service unavailable")

// Client はフラグサービスのインターフェースです。エラーを返した場合、呼び出し側は false として扱います。
type Client interface {
	IsEnabled(ctx context.Context, flag, distinctID string) (bool, error)
}

// ClientFunc は関数をClientとして使うためのアダプターです。
type ClientFunc func(ctx context.Context, flag, distinctID string) (bool, error)

// IsEnabled は f を呼び出します。
func (f ClientFunc) IsEnabled(ctx context.Context, flag, distinctID string) (bool, error) {
	return f(ctx, flag, distinctID)
}

// StaticClient は設定値だけでフラグを返すClientです。distinct id には依存しません。
type StaticClient struct {
	flags map[string]bool
}

// NewStaticClient は新しいStaticClientを作成します。
func NewStaticClient(flags map[string]bool) *StaticClient {
	copied := make(map[string]bool, len(flags))
	for k, v := range flags {
		copied[k] = v
	}
	return &StaticClient{flags: copied}
}

// IsEnabled は設定されたフラグの値を返します。未設定のフラグは false。
func (s *StaticClient) IsEnabled(ctx context.Context, flag, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.flags[flag], nil
}
