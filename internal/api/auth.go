package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
)

type AuthType int

const (
	// DenyRemote rejects every request from a non-private address.
	DenyRemote AuthType = iota
	BearerToken
)

var privateIPBlocks []*net.IPNet

func init() {
	for _, block := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
	} {
		_, subnet, err := net.ParseCIDR(block)
		if err != nil {
			panic(err)
		}
		privateIPBlocks = append(privateIPBlocks, subnet)
	}
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, subnet := range privateIPBlocks {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}

// remoteIP extracts the peer address from r.RemoteAddr, which is host:port
// for requests from net/http.
func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

func Authenticate(r *http.Request, authType AuthType, token string) error {
	switch authType {
	case DenyRemote:
		return errors.New("authentication failed: remote access disabled")
	case BearerToken:
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return errors.New("authentication failed: bad bearer token")
		}
		return nil
	default:
		return errors.New("authentication failed: not specified")
	}
}

// privateOnly lets private addresses through and asks everyone else to
// authenticate.
func (s *Server) privateOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPrivateIP(remoteIP(r)) {
			if err := Authenticate(r, s.authType, s.token); err != nil {
				s.log.Warn(err.Error())
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				s.logResponse(r.URL.Path, r.RemoteAddr, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
