package cypher

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	faucetMessageTemplate = "Sign this to obtain 1 DEAI Testnet tokens (once per day till 12pm UTC of the next day) for testing Cypher chain!\n\nURI: %s\nWeb3 Token Version: 2\nIssued At: %s\nExpiration Time: %s"
	proofTTL              = 120 * time.Second
	isoMillis             = "2006-01-02T15:04:05.000Z"
)

// MessageSigner 产生个人消息签名。
type MessageSigner interface {
	SignMessage(message []byte) ([]byte, error)
}

// FaucetMessage 构造领取原生水龙头时需要签名的 Web3 Token 正文。
func FaucetMessage(uri string, issuedAt time.Time) string {
	issuedAt = issuedAt.UTC()
	return fmt.Sprintf(faucetMessageTemplate, uri,
		issuedAt.Format(isoMillis),
		issuedAt.Add(proofTTL).Format(isoMillis))
}

// BuildFaucetProof 返回 base64 编码的 {"signature","body"}。
func BuildFaucetProof(signer MessageSigner, uri string, now time.Time) (string, error) {
	body := FaucetMessage(uri, now)
	sig, err := signer.SignMessage([]byte(body))
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(struct {
		Signature string `json:"signature"`
		Body      string `json:"body"`
	}{Signature: hexutil.Encode(sig), Body: body})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encoded), nil
}
