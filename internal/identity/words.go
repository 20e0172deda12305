package identity

// Word lists for display-name assignment. Names are adjective+noun pairs
// like "BlueLake"; with 48x48 combinations collisions stay rare until a
// swarm grows well past any realistic size.

var adjectives = []string{
	"Amber", "Ancient", "Azure", "Bold", "Brave", "Bright", "Bronze", "Calm",
	"Clever", "Cobalt", "Coral", "Crimson", "Daring", "Dusty", "Eager",
	"Emerald", "Fierce", "Frosty", "Gentle", "Golden", "Grand", "Hazel",
	"Hidden", "Humble", "Iron", "Ivory", "Jade", "Keen", "Lively", "Lucky",
	"Lunar", "Mellow", "Mighty", "Misty", "Noble", "Opal", "Quiet", "Rapid",
	"Royal", "Rustic", "Scarlet", "Silent", "Silver", "Solar", "Steady",
	"Swift", "Violet", "Wild",
}

var nouns = []string{
	"Anchor", "Arrow", "Badger", "Beacon", "Birch", "Brook", "Canyon",
	"Cedar", "Cliff", "Comet", "Condor", "Crane", "Creek", "Delta", "Dune",
	"Eagle", "Ember", "Falcon", "Fjord", "Forest", "Fox", "Glacier", "Grove",
	"Harbor", "Hawk", "Heron", "Hill", "Lake", "Lynx", "Meadow", "Mesa",
	"Otter", "Peak", "Pine", "Raven", "Reef", "Ridge", "River", "Sparrow",
	"Spruce", "Stone", "Summit", "Thicket", "Tiger", "Trail", "Valley",
	"Willow", "Wolf",
}
