package domain

// ---------------------------------------------------------------------------
// Shared value objects — used across bounded contexts
// ---------------------------------------------------------------------------

// ActorType identifies who is speaking in an order conversation.
type ActorType string

const (
	ActorCustomer ActorType = "customer"
	ActorKitchen  ActorType = "kitchen"
	ActorDriver   ActorType = "driver"
	ActorSystem   ActorType = "ai-system"
)

// AllActorTypes returns all known actor types.
func AllActorTypes() []ActorType {
	return []ActorType{ActorCustomer, ActorKitchen, ActorDriver, ActorSystem}
}

// String implements fmt.Stringer.
func (at ActorType) String() string { return string(at) }

// Valid returns true if the actor type is recognized.
func (at ActorType) Valid() bool {
	for _, t := range AllActorTypes() {
		if t == at {
			return true
		}
	}
	return false
}

// Human reports whether the actor is a person rather than the automated system.
func (at ActorType) Human() bool { return at != ActorSystem }

// ---------------------------------------------------------------------------

// Channel represents an outbound notification delivery medium.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelInstagram Channel = "instagram"
	ChannelVoice     Channel = "voice"
)

// AllChannels returns all known delivery channels.
func AllChannels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelEmail, ChannelSMS, ChannelInstagram, ChannelVoice}
}

func (c Channel) String() string { return string(c) }

// Valid returns true if the channel is recognized.
func (c Channel) Valid() bool {
	for _, ch := range AllChannels() {
		if ch == c {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------

// Language is a two-letter message language code.
type Language string

const (
	LangEnglish    Language = "en"
	LangSpanish    Language = "es"
	LangPortuguese Language = "pt"
)

// SupportedLanguages returns the languages with a full template catalog.
func SupportedLanguages() []Language {
	return []Language{LangEnglish, LangSpanish, LangPortuguese}
}

func (l Language) String() string { return string(l) }

// Supported returns true if a template catalog exists for the language.
func (l Language) Supported() bool {
	for _, sl := range SupportedLanguages() {
		if sl == l {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------

// Metadata is a generic key-value map for extensible properties.
type Metadata map[string]string

// Get returns a metadata value, or empty string if not present.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Set writes a metadata key-value pair. Initializes the map if nil.
func (m *Metadata) Set(key, value string) {
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = value
}
