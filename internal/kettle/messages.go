package kettle

// Inbound tags consumed by the dispatcher.
const (
	TagCreateGame     = "CreateGame"
	TagConcede        = "Concede"
	TagSendOption     = "SendOption"
	TagChooseEntities = "ChooseEntities"
)

// Outbound tags produced by the builder.
const (
	TagOptionsBlock        = "OptionsBlock"
	TagHistoryTagChange    = "HistoryTagChange"
	TagHistoryCreateGame   = "HistoryCreateGame"
	TagHistoryFullEntity   = "HistoryFullEntity"
	TagHistoryShowEntity   = "HistoryShowEntity"
	TagHistoryChangeEntity = "HistoryChangeEntity"
	TagOptions             = "Options"
	TagEntityChoices       = "EntityChoices"
)

// CreateGame asks the engine to start a game.
type CreateGame struct {
	GameID  int            `json:"GameID"`
	Players []CreatePlayer `json:"Players"`
}

type CreatePlayer struct {
	Name  string   `json:"Name"`
	Hero  string   `json:"Hero"`
	Cards []string `json:"Cards"`
}

// SendOption is the client's pick from the last Options list.
type SendOption struct {
	Index     int `json:"Index"`
	Target    int `json:"Target"`
	SubOption int `json:"SubOption"`
	Position  int `json:"Position"`
}

// Entity is an entity id plus its game tags.
type Entity struct {
	EntityID int         `json:"EntityID"`
	Tags     map[int]int `json:"Tags"`
}

type Player struct {
	Entity    Entity `json:"Entity"`
	PlayerID  int    `json:"PlayerID"`
	CardBack  int    `json:"CardBack"`
	AccountHi uint64 `json:"AccountHi"`
	AccountLo uint64 `json:"AccountLo"`
}

type SubOption struct {
	ID      int   `json:"ID"`
	Targets []int `json:"Targets,omitempty"`
}

type Option struct {
	Type       int         `json:"Type"`
	MainOption *SubOption  `json:"MainOption,omitempty"`
	SubOptions []SubOption `json:"SubOptions,omitempty"`
}

// Outbound is implemented by every message kind the engine can send.
type Outbound interface {
	Tag() string
}

type OptionsBlock struct {
	ID       int      `json:"ID"`
	PlayerID int      `json:"PlayerID"`
	Options  []Option `json:"Options"`
}

// HistoryTagChange sets game tag GameTag on an entity. The field keeps the
// "Tag" wire key; Tag() is the envelope discriminator.
type HistoryTagChange struct {
	EntityID int `json:"EntityID"`
	GameTag  int `json:"Tag"`
	Value    int `json:"Value"`
}

type HistoryCreateGame struct {
	Game    Entity   `json:"Game"`
	Players []Player `json:"Players"`
}

type HistoryFullEntity struct {
	Entity Entity `json:"Entity"`
	Name   string `json:"Name"`
}

type HistoryShowEntity struct {
	Entity Entity `json:"Entity"`
	Name   string `json:"Name"`
}

type HistoryChangeEntity struct {
	Entity Entity `json:"Entity"`
	Name   string `json:"Name"`
}

// Options is sent as a bare list.
type Options []Option

type EntityChoices struct {
	ID         int   `json:"ID"`
	PlayerID   int   `json:"PlayerID"`
	ChoiceType int   `json:"ChoiceType"`
	CountMin   int   `json:"CountMin"`
	CountMax   int   `json:"CountMax"`
	Entities   []int `json:"Entities"`
	Source     int   `json:"Source"`
}

func (OptionsBlock) Tag() string        { return TagOptionsBlock }
func (HistoryTagChange) Tag() string    { return TagHistoryTagChange }
func (HistoryCreateGame) Tag() string   { return TagHistoryCreateGame }
func (HistoryFullEntity) Tag() string   { return TagHistoryFullEntity }
func (HistoryShowEntity) Tag() string   { return TagHistoryShowEntity }
func (HistoryChangeEntity) Tag() string { return TagHistoryChangeEntity }
func (Options) Tag() string             { return TagOptions }
func (EntityChoices) Tag() string       { return TagEntityChoices }
