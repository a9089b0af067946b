package ros

// ServiceType carries the static metadata of a generated service binding
// and builds empty service instances for the transport to fill.
type ServiceType interface {
	MD5Sum() string
	Name() string
	RequestType() MessageType
	ResponseType() MessageType
	NewService() Service
}

// Service pairs the request and response halves of one service exchange.
type Service interface {
	ReqMessage() Message
	ResMessage() Message
}
