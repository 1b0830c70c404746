// Package channel define o contrato dos canais de notificação e as implementações
// que falam HTTP/SMTP diretamente (Discord, Twitter e resumo por e-mail).
package channel

import (
	"context"
	"errors"

	"bot-ofertas/internal/models"
)

// ErrNotConfigured é retornado por canais sem credenciais
var ErrNotConfigured = errors.New("canal não configurado")

// Channel é um destino de notificação. Send retorna nil em caso de sucesso e
// um erro descrevendo a falha caso contrário; nunca deve entrar em pânico.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string, p models.Product) error
}

type disabled struct {
	name string
}

// Disabled representa um canal sem configuração: todo envio falha com ErrNotConfigured
func Disabled(name string) Channel {
	return disabled{name: name}
}

func (d disabled) Name() string { return d.name }

func (d disabled) Send(context.Context, string, models.Product) error {
	return ErrNotConfigured
}

// IsDisabled diz se o canal é a variante sem configuração
func IsDisabled(c Channel) bool {
	_, ok := c.(disabled)
	return ok
}
