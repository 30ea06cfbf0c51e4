package catalog

import (
	"strings"

	"kennel-assistant/internal/domain"
)

// Catalog is a read-only list of puppies.
type Catalog struct {
	puppies []domain.Puppy
}

func New(puppies []domain.Puppy) *Catalog {
	return &Catalog{puppies: append([]domain.Puppy(nil), puppies...)}
}

// Default returns the kennel's current litter.
func Default() *Catalog {
	return New([]domain.Puppy{
		{ID: 1, Name: "Снежок", Gender: "мальчик", Age: "2 месяца", Color: "белый", Price: "95 000 ₽", Image: "https://images.unsplash.com/photo-1587300003388-59208cc962cb?w=600&q=80", Status: domain.PuppyAvailable},
		{ID: 2, Name: "Белла", Gender: "девочка", Age: "2.5 месяца", Color: "белый", Price: "110 000 ₽", Image: "https://images.unsplash.com/photo-1530281700549-e82e7bf110d6?w=600&q=80", Status: domain.PuppyAvailable},
		{ID: 3, Name: "Лайка", Gender: "девочка", Age: "3 месяца", Color: "белый", Price: "120 000 ₽", Image: "https://images.unsplash.com/photo-1601979031925-424e53b6caaa?w=600&q=80", Status: domain.PuppyReserved},
		{ID: 4, Name: "Мишка", Gender: "мальчик", Age: "2 месяца", Color: "белый", Price: "100 000 ₽", Image: "https://images.unsplash.com/photo-1583511655857-d19b40a7a54e?w=600&q=80", Status: domain.PuppyAvailable},
	})
}

func (c *Catalog) All() []domain.Puppy {
	return append([]domain.Puppy(nil), c.puppies...)
}

// Available returns the puppies that can still be booked, in catalog order.
func (c *Catalog) Available() []domain.Puppy {
	out := make([]domain.Puppy, 0, len(c.puppies))
	for _, p := range c.puppies {
		if p.Status == domain.PuppyAvailable {
			out = append(out, p)
		}
	}
	return out
}

// FindAvailable looks up a bookable puppy by name, ignoring case.
func (c *Catalog) FindAvailable(name string) (domain.Puppy, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.puppies {
		if p.Status == domain.PuppyAvailable && strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return domain.Puppy{}, false
}
