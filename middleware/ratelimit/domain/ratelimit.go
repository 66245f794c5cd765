package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// FallbackKey é a chave usada quando a requisição não traz nenhum sinal de origem.
// Todas essas requisições dividem um único contador.
const FallbackKey Key = "unknown"

// Counter é o estado de uma chave dentro da janela atual.
//
// Count começa em 1 na criação e só cresce dentro da janela; ao expirar,
// o registro inteiro é substituído (nunca decrementado).
type Counter struct {
	Count   int64
	ResetAt time.Time
}

// Expired indica se a janela do contador já terminou em `now`.
func (c Counter) Expired(now time.Time) bool {
	return now.After(c.ResetAt)
}

// CounterStore guarda os contadores por chave.
//
// Hit é a única operação: cria, reinicia ou incrementa o contador e devolve o
// estado resultante (não existe "peek"). Implementações em memória nunca falham;
// implementações remotas (ex: Redis) podem devolver erro.
type CounterStore interface {
	Hit(ctx context.Context, key Key, now time.Time, window time.Duration) (Counter, error)
}

// Limiter decide se a requisição de uma chave cabe na cota.
//
// Observação: a implementação pode ser janela fixa, token-bucket, etc.
type Limiter interface {
	Decide(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool

	Limit     int64
	Remaining int64
	// ResetAt é o instante absoluto em que a janela da chave termina.
	ResetAt time.Time

	// RetryAfter é o tempo até ResetAt quando bloqueado. Se 0, não há recomendação.
	RetryAfter time.Duration

	// Message é o texto devolvido ao cliente quando bloqueado.
	Message string
}
