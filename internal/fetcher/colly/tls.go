package collyfetcher

import "crypto/tls"

// legacyTLSConfig widens the client's offer to every suite Go implements,
// including the RSA key-exchange and CBC suites dropped from the defaults.
// TLS 1.3 suites are not configurable and stay enabled.
func legacyTLSConfig() *tls.Config {
	suites := tls.CipherSuites()
	suites = append(suites, tls.InsecureCipherSuites()...)
	ids := make([]uint16, 0, len(suites))
	for _, s := range suites {
		ids = append(ids, s.ID)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS10,
		CipherSuites: ids,
	}
}
