// Resident spawning: the named roster plus seeded random townsfolk.
package agents

import (
	"fmt"

	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/world"
)

// DefaultRoster returns the town's named residents.
func DefaultRoster() []Config {
	return []Config{
		{
			ID: "alice", Name: "Alice", Age: 28, Occupation: "barista", Role: "barista",
			Background:  "I run the coffee shop in the middle of town and know most of the regulars by name.",
			Personality: Personality{Openness: 0.7, Conscientiousness: 0.8, Extraversion: 0.8, Agreeableness: 0.9, Neuroticism: 0.3},
			Position:    world.Position{X: 20, Y: 20, Area: "coffee_shop"},
			HomeID:      "house_1", WorkID: "coffee_shop",
		},
		{
			ID: "bob", Name: "Bob", Age: 45, Occupation: "librarian", Role: "librarian",
			Background:  "I look after the public library and love recommending books to anyone who asks.",
			Personality: Personality{Openness: 0.9, Conscientiousness: 0.9, Extraversion: 0.4, Agreeableness: 0.7, Neuroticism: 0.2},
			Position:    world.Position{X: 60, Y: 15, Area: "library"},
			HomeID:      "house_2", WorkID: "library",
		},
		{
			ID: "charlie", Name: "Charlie", Age: 35, Occupation: "office_worker", Role: "office_worker",
			Background:  "I work at the town office and spend my evenings walking in the park.",
			Personality: Personality{Openness: 0.6, Conscientiousness: 0.7, Extraversion: 0.6, Agreeableness: 0.6, Neuroticism: 0.4},
			Position:    world.Position{X: 5, Y: 25, Area: "home"},
			HomeID:      "house_3", WorkID: "office_1",
		},
	}
}

// Spawner generates random residents.
type Spawner struct {
	rng    entropy.Source
	m      *world.Map
	nextID int
}

// NewSpawner creates a resident spawner with the given seed.
func NewSpawner(seed int64, m *world.Map) *Spawner {
	return &Spawner{rng: entropy.Derive(seed, "spawner"), m: m, nextID: 1}
}

// Residents returns the roster followed by random residents, count in total.
// A count at or below the roster size truncates the roster.
func (s *Spawner) Residents(count int, roster []Config) []Config {
	if count <= len(roster) {
		return append([]Config(nil), roster[:max(count, 0)]...)
	}
	out := append([]Config(nil), roster...)
	for len(out) < count {
		out = append(out, s.spawnOne())
	}
	return out
}

var occupations = []struct {
	occupation, role, work string
}{
	{"shopkeeper", "resident", "grocery"},
	{"cook", "resident", "restaurant"},
	{"clerk", "office_worker", "office_1"},
	{"bookseller", "resident", "bookstore"},
	{"gardener", "resident", "park"},
	{"student", "resident", "library"},
}

func (s *Spawner) spawnOne() Config {
	id := fmt.Sprintf("resident_%d", s.nextID)
	s.nextID++

	occ := entropy.Pick(s.rng, occupations)
	home := s.homeFor()
	pos := world.Position{X: 10, Y: 10, Area: "home"}
	if b := s.building(home); b != nil {
		pos = b.Entrance.At("home")
	}

	first := maleNames
	if s.rng.Float64() < 0.5 {
		first = femaleNames
	}
	name := entropy.Pick(s.rng, first) + " " + entropy.Pick(s.rng, lastNames)

	return Config{
		ID:          id,
		Name:        name,
		Age:         s.weightedAge(),
		Occupation:  occ.occupation,
		Role:        occ.role,
		Background:  fmt.Sprintf("I am a %s who moved to town recently.", occ.occupation),
		Personality: s.personality(),
		Position:    pos,
		HomeID:      home,
		WorkID:      occ.work,
	}
}

func (s *Spawner) building(id string) *world.Building {
	if s.m == nil {
		return nil
	}
	return s.m.Building(id)
}

func (s *Spawner) homeFor() string {
	if s.m == nil {
		return ""
	}
	homes := s.m.BuildingsOfType("home")
	if len(homes) == 0 {
		return ""
	}
	return homes[s.rng.Intn(len(homes))].ID
}

// weightedAge approximates a bell curve around 35, clamped to adulthood.
func (s *Spawner) weightedAge() int {
	sum := 0.0
	for i := 0; i < 4; i++ {
		sum += s.rng.Float64()
	}
	age := 18 + int(sum/4*52)
	return min(age, 70)
}

func (s *Spawner) personality() Personality {
	trait := func() float64 { return 0.2 + s.rng.Float64()*0.7 }
	return Personality{
		Openness:          trait(),
		Conscientiousness: trait(),
		Extraversion:      trait(),
		Agreeableness:     trait(),
		Neuroticism:       trait(),
	}
}

var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Hugo", "Ivan", "Jasper", "Leif", "Magnus", "Nils", "Oswin",
	"Quinn", "Rowan", "Theron", "Wren", "Zander", "Dorian",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Iris", "Juno", "Kira", "Lena", "Mira", "Nessa", "Petra",
	"Thea", "Vera", "Willa", "Yara", "Cora", "Fern",
}

var lastNames = []string{
	"Voss", "Ashford", "Dunmore", "Greenvale", "Millward", "Copperfield",
	"Silverdale", "Deepwell", "Brightwater", "Riverstone", "Holloway",
	"Farrow", "Wyatt", "Thatcher",
}
