package exchange

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// DefaultSignatureWindow 是签名的有效期窗口（毫秒），与交易所约定保持一致。
const DefaultSignatureWindow int64 = 10000

// Signer 负责对 Backpack 的请求与订阅握手进行 ED25519 签名。
// apiKey 即 base64 编码的公钥，apiSecret 是 base64 编码的私钥种子。
type Signer struct {
	apiKey string
	priv   ed25519.PrivateKey
}

// NewSigner 解码密钥并构造签名器。
func NewSigner(apiKey, apiSecret string) (*Signer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("api key and secret must be set")
	}
	seed, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("api secret must be a %d-byte ed25519 seed, got %d bytes", ed25519.SeedSize, len(seed))
	}
	return &Signer{
		apiKey: apiKey,
		priv:   ed25519.NewKeyFromSeed(seed),
	}, nil
}

// APIKey 返回 base64 编码的公钥，随签名一起作为身份标识发送。
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign 对签名载荷做 ED25519 签名并返回 base64 结果。
func (s *Signer) Sign(payload string) string {
	sig := ed25519.Sign(s.priv, []byte(payload))
	return base64.StdEncoding.EncodeToString(sig)
}

// SignInstruction 按交易所约定拼装签名载荷：
// instruction=<指令>[&<字典序参数>]&timestamp=<毫秒>&window=<毫秒>
func (s *Signer) SignInstruction(instruction, sortedParams string, timestamp, window int64) string {
	payload := fmt.Sprintf("instruction=%s", instruction)
	if sortedParams != "" {
		payload += "&" + sortedParams
	}
	payload += fmt.Sprintf("&timestamp=%d&window=%d", timestamp, window)
	return s.Sign(payload)
}
