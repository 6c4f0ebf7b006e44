package models

type Identifier interface {
	GetId() int
}

// Data is a row a dataloader can return. GetDefault builds the placeholder
// handed back for ids the store does not know.
type Data interface {
	Identifier
	GetDefault(id int) Data
}
