package domain

import "context"

// SlotPool limita quantas requisições seguem ao mesmo tempo para o upstream.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. O release
// devolvido pelo pool devolve a vaga; quem chama garante uma única chamada.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
