// Package mqtt 提供 MQTT 插座控制和进度事件发布，Publisher 接口便于测试替换
package mqtt

// Publisher 向 broker 发布消息
type Publisher interface {
	// Publish 发布失败返回错误，调用方决定是否重试
	Publish(topic string, qos byte, retained bool, payload []byte) error

	Close() error
}

// ConnectionStatus 连接状态
type ConnectionStatus interface {
	IsConnected() bool
}
