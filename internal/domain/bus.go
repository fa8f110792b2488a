package domain

// ItemBus carries raw inbound items from the transport to the pipeline.
type ItemBus interface {
	Publish(item Item)
	Subscribe() <-chan Item
	Close()
}
