package scraper

import "context"

// Source define a interface para fontes de listagens de diferentes lojas
type Source interface {
	Name() string
	// Fetch baixa as páginas da fonte e devolve os fragmentos encontrados
	Fetch(ctx context.Context) ([]Fragment, error)
}

// Registry mantém um registro de todas as fontes disponíveis
type Registry struct {
	sources []Source
}

// NewRegistry cria um novo registro de fontes
func NewRegistry(sources ...Source) *Registry {
	return &Registry{sources: sources}
}

// Sources retorna as fontes registradas, na ordem em que foram adicionadas
func (r *Registry) Sources() []Source {
	return r.sources
}

// Find encontra uma fonte pelo nome
func (r *Registry) Find(name string) Source {
	for _, source := range r.sources {
		if source.Name() == name {
			return source
		}
	}
	return nil
}

// Names retorna o nome de cada fonte registrada
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}
