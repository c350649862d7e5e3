package models

import "errors"

// ErrSetupFailure 无法建立可用的车辆/账户句柄，监控循环不再继续
var ErrSetupFailure = errors.New("setup failure")
