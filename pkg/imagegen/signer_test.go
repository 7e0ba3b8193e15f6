package imagegen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignerKnownSignature(t *testing.T) {
	s := &Signer{
		AccessKey: "AKLTtestaccesskey",
		SecretKey: "dGVzdHNlY3JldGtleQ==",
		Region:    DefaultVisualRegion,
		Service:   DefaultVisualService,
		Host:      DefaultVisualHost,
	}
	query := FormatQuery(map[string]string{"Version": "2022-08-31", "Action": "CVSync2AsyncSubmitTask"})
	body := []byte(`{"req_key":"jimeng_t2i_v40","prompt":"oil painting"}`)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	h := s.Sign("POST", query, body, ts)

	assert.Equal(t, "Action=CVSync2AsyncSubmitTask&Version=2022-08-31", query)
	assert.Equal(t, "20250102T030405Z", h.XDate)
	assert.Equal(t, "application/json", h.ContentType)
	assert.Equal(t, "2a0bd7433b420a3cd61ade13717210d3bde6d5c0ffd55edbffd00792827ad096", h.ContentSha256)
	assert.Equal(t,
		"HMAC-SHA256 Credential=AKLTtestaccesskey/20250102/cn-north-1/cv/request, "+
			"SignedHeaders=content-type;host;x-content-sha256;x-date, "+
			"Signature=45de5a978b33c04098ec94f74482c89bb23e83254b00e95c1147c33e5c398ad2",
		h.Authorization)

	// 同样输入结果一致
	assert.Equal(t, h, s.Sign("POST", query, body, ts))
	// 非UTC时间先换算
	assert.Equal(t, h, s.Sign("POST", query, body, ts.In(time.FixedZone("CST", 8*3600))))
}

func TestSignerChangesWithInputs(t *testing.T) {
	s := &Signer{AccessKey: "ak", SecretKey: "sk", Region: "r", Service: "cv", Host: "h"}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	base := s.Sign("POST", "a=b", []byte("{}"), ts)

	assert.NotEqual(t, base.Authorization, s.Sign("POST", "a=b", []byte(`{"x":1}`), ts).Authorization)
	assert.NotEqual(t, base.Authorization, s.Sign("POST", "a=b", []byte("{}"), ts.Add(time.Second)).Authorization)

	other := *s
	other.SecretKey = "sk2"
	assert.NotEqual(t, base.Authorization, other.Sign("POST", "a=b", []byte("{}"), ts).Authorization)
}

func TestFormatQuery(t *testing.T) {
	assert.Equal(t, "", FormatQuery(nil))
	assert.Equal(t, "a=1&b=2&c=3", FormatQuery(map[string]string{"c": "3", "a": "1", "b": "2"}))
}
