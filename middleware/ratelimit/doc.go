// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela fixa allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (contadores em memória/Redis, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (peer, X-Forwarded-For, ou "unknown")
//  2. Chama a camada application para obter a decisão (a mesma chamada consome a cota)
//  3. Escreve X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset (epoch ms)
//  4. Se bloqueado, responde 429 com {"error": <mensagem>}; senão chama o próximo handler
//
// As variáveis RATE_LIMIT_WINDOW_MS e RATE_LIMIT_MAX_REQUESTS (ver internal/config)
// controlam a janela e o teto.
package ratelimit
