package imagegen

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

const (
	signAlgorithm = "HMAC-SHA256"
	signedHeaders = "content-type;host;x-content-sha256;x-date"
	contentType   = "application/json"
)

// Signer 火山引擎 V4 风格请求签名
type Signer struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
	Host      string
}

// SignedHeaders 签名后需要附加到请求上的头
type SignedHeaders struct {
	XDate         string
	Authorization string
	ContentSha256 string
	ContentType   string
}

// Sign 对请求签名。相同输入（含时间）产生逐字节相同的结果
func (s *Signer) Sign(method, query string, body []byte, t time.Time) SignedHeaders {
	t = t.UTC()
	currentDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")

	payloadHash := hashHex(body)
	canonicalHeaders := "content-type:" + contentType + "\n" +
		"host:" + s.Host + "\n" +
		"x-content-sha256:" + payloadHash + "\n" +
		"x-date:" + currentDate + "\n"
	canonicalRequest := strings.Join([]string{
		method,
		"/",
		query,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := dateStamp + "/" + s.Region + "/" + s.Service + "/request"
	stringToSign := signAlgorithm + "\n" + currentDate + "\n" + credentialScope + "\n" + hashHex([]byte(canonicalRequest))

	signingKey := deriveSigningKey(s.SecretKey, dateStamp, s.Region, s.Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authorization := signAlgorithm + " Credential=" + s.AccessKey + "/" + credentialScope +
		", SignedHeaders=" + signedHeaders + ", Signature=" + signature

	return SignedHeaders{
		XDate:         currentDate,
		Authorization: authorization,
		ContentSha256: payloadHash,
		ContentType:   contentType,
	}
}

// FormatQuery 按键排序拼接查询参数（不做转义）
func FormatQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte(secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "request")
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
