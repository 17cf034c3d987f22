package utils

import "math/rand"

// Display names make individual sessions easy to pick out in the
// results database without identifying the participant.

var nameAdjectives = []string{
	"Brave", "Curious", "Dizzy", "Eager", "Fuzzy", "Giggly", "Happy",
	"Jolly", "Mellow", "Nimble", "Peppy", "Quirky", "Sleepy", "Sneaky",
	"Spunky", "Wobbly", "Zesty", "Breezy", "Cheery", "Dapper",
}

var nameAnimals = []string{
	"Badger", "Beaver", "Dolphin", "Ferret", "Gecko", "Hedgehog",
	"Iguana", "Jackal", "Koala", "Lemur", "Marmot", "Narwhal", "Otter",
	"Penguin", "Quokka", "Raccoon", "Sloth", "Toucan", "Walrus", "Yak",
}

// GenerateFunnyName produces a pseudo-random adjective-animal label for
// a new session record, e.g. "Sneaky Quokka". Uniqueness is not
// required; the page id is the correlation key.
func GenerateFunnyName() string {
	adjective := nameAdjectives[rand.Intn(len(nameAdjectives))]
	animal := nameAnimals[rand.Intn(len(nameAnimals))]
	return adjective + " " + animal
}
