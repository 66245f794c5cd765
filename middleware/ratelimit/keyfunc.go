package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"parking-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// ClientKey deriva a identidade do cliente:
//  1. endereço do peer (RemoteAddr, só o host quando vier "host:porta");
//  2. primeiro valor do X-Forwarded-For;
//  3. FallbackKey, compartilhada por todas as requisições sem sinal de origem.
func ClientKey(r *http.Request) string {
	if host := peerAddr(r); host != "" {
		return host
	}
	if ip := firstForwarded(r); ip != "" {
		return ip
	}
	return string(domain.FallbackKey)
}

// DefaultKeyFunc permite priorizar um header de chave (ex: X-Api-Key) e,
// atrás de um proxy confiável, o X-Forwarded-For antes do peer.
// Com keyHeader vazio e preferForwarded=false equivale a ClientKey.
func DefaultKeyFunc(keyHeader string, preferForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if preferForwarded {
			if ip := firstForwarded(r); ip != "" {
				return ip
			}
		}

		return ClientKey(r)
	}
}

func peerAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	return addr
}

// firstForwarded pega o primeiro IP do X-Forwarded-For (cliente original).
func firstForwarded(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
