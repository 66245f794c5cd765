// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Policy/Counter/Decision descrevem o limiter de janela fixa; CounterStore e
// Limiter são os pontos de extensão implementados em infra e application.
package domain
