package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// signer produces the authentication headers for REST requests. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body), base64.
type signer struct {
	key        string
	secret     string
	passphrase string

	// now is swappable for tests.
	now func() time.Time
}

func newSigner(key, secret, passphrase string) *signer {
	return &signer{key: key, secret: secret, passphrase: passphrase, now: time.Now}
}

func (s *signer) sign(req *http.Request, body string) {
	if s.key == "" {
		return
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	message := ts + req.Method + req.URL.Path + body

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(message))

	req.Header.Set("X-API-KEY", s.key)
	req.Header.Set("X-API-TIMESTAMP", ts)
	req.Header.Set("X-API-PASSPHRASE", s.passphrase)
	req.Header.Set("X-API-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
