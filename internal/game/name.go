// internal/game/name.go
package game

import "math/rand/v2"

// GenerateName produces a human-friendly room name like "Intrepid Heron".
// Names are not unique; the game id is the real key.
func GenerateName() string {
	adj := adjectives[rand.IntN(len(adjectives))]
	animal := animals[rand.IntN(len(animals))]
	return adj + " " + animal
}

var adjectives = []string{
	"Bold",
	"Brave",
	"Cheerful",
	"Clever",
	"Confident",
	"Courageous",
	"Curious",
	"Dashing",
	"Eager",
	"Festive",
	"Gallant",
	"Gigantic",
	"Idealistic",
	"Intrepid",
	"Inventive",
	"Majestic",
	"Optimistic",
	"Placid",
	"Radiant",
	"Ruffled",
	"Spirited",
	"Sumptuous",
	"Valiant",
	"Venerable",
}

var animals = []string{
	"Badger",
	"Beaver",
	"Bison",
	"Crane",
	"Coyote",
	"Duck",
	"Eagle",
	"Falcon",
	"Fox",
	"Frog",
	"Gazelle",
	"Gorilla",
	"Hedgehog",
	"Heron",
	"Lynx",
	"Marmot",
	"Moose",
	"Nightingale",
	"Otter",
	"Owl",
	"Panda",
	"Raccoon",
	"Squirrel",
	"Swallow",
	"Tiger",
	"Walrus",
	"Weasel",
	"Wolf",
	"Wombat",
	"Zebra",
}
