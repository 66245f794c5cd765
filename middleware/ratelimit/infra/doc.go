// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: contadores de janela fixa por chave, em memória
//   - RedisStore: contadores de janela fixa compartilhados (Lua + circuit breaker)
//   - TokenBucket: limiter alternativo usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - *Stats: estatísticas de decisão em memória, Redis e Prometheus
package infra
