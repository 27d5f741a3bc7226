package engagement

import "strings"

// Tables holds the literal pools the engine draws from. Tests inject small
// fixed tables; production uses DefaultTables.
type Tables struct {
	Keywords []string
	Phrases  []string
	// Personal entries may contain {user}, replaced by the author's display name.
	Personal  []string
	Reactions []string
}

var defaultKeywords = []string{"meow", "purr", "cat", "kitten", "kitty", "feline", "whiskers", "paw", "tail"}

var defaultPhrases = []string{
	"Meowdy!",
	"Purrhaps... 🐾",
	"Cats > Humans 🐈",
	"Give me snacks! 🐟",
	"*knocks cup off table* 🥛",
	"Nyaa~ 💖",
	"I'm feline good today! 😸",
	"*stretches and yawns* 😴",
	"Paws what you're doing! 🐾",
	"That's purrfect! ✨",
	"I'm not kitten around! 😹",
	"*rubs against your leg* 🐱",
	"Did someone say tuna? 🐟",
	"I nap, therefore I am. 💤",
	"Knead more biscuits. 🍞🐾",
	"The zoomies have begun! 🏃🐈",
	"Staring into the void… 👀",
	"Feed me and tell me I’m cute. 😽",
	"This spot is mine now. 🪑🐱",
	"Humans are just can openers with legs. 🥫",
	"Pet me… but only three times. 😼",
	"Delete your homework? Don’t tempt me. 💻🐾",
	"I see ghosts. Or maybe it’s just dust. 👻🐈",
	"If I fits, I sits. 📦",
	"Respect the floof. ✨🐱",
	"Consider yourself blessed by my presence. 🙀",
	"Bring me shrimp, mortal. 🍤😸",
	"You can’t outstare me, hooman. 👁️🐾",
	"I’m secretly plotting world domination. 🌍🐱",
	"Knock knock. Who’s there? Not your glass anymore. 💥",
	"Meowgic is everywhere. ✨🐾",
	"Bow before your fluffy overlord. 👑🐈",
}

var defaultPersonal = []string{
	"@{user}, you're purrfect! 😺",
	"Hey @{user}! *headbutts affectionately* 🐾",
	"@{user}, stop hogging all the attention! 😹",
	"Paws up, @{user}! You're awesome! 🐾",
	"*meows at @{user}* Notice me! 🐱",
	"@{user}, you deserve all the treats! 🐟",
}

var defaultReactions = []string{"🐱", "😺", "😸", "😹", "😻", "🐾", "❤️"}

// DefaultTables returns fresh copies of the built-in pools.
func DefaultTables() Tables {
	return Tables{
		Keywords:  append([]string(nil), defaultKeywords...),
		Phrases:   append([]string(nil), defaultPhrases...),
		Personal:  append([]string(nil), defaultPersonal...),
		Reactions: append([]string(nil), defaultReactions...),
	}
}

// withDefaults fills empty pools from DefaultTables.
func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if len(t.Keywords) == 0 {
		t.Keywords = d.Keywords
	}
	if len(t.Phrases) == 0 {
		t.Phrases = d.Phrases
	}
	if len(t.Personal) == 0 {
		t.Personal = d.Personal
	}
	if len(t.Reactions) == 0 {
		t.Reactions = d.Reactions
	}
	return t
}

// MatchKeyword returns the first keyword contained in the lower-cased text.
func (t Tables) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range t.Keywords {
		if k != "" && strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

func personalize(tmpl, user string) string {
	return strings.ReplaceAll(tmpl, "{user}", user)
}

// Phrase picks a static phrase. Shared with the broadcast jobs.
func (t Tables) Phrase(r Rand) string {
	return pick(r, t.withDefaults().Phrases)
}

func pick(r Rand, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[r.Intn(len(pool))]
}
