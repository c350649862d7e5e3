package renault

import "time"

// gigyaResponse Gigya 接口公共字段，HTTP 200 时也可能携带错误码
type gigyaResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type loginResponse struct {
	gigyaResponse
	SessionInfo struct {
		CookieValue string `json:"cookieValue"`
	} `json:"sessionInfo"`
}

type accountInfoResponse struct {
	gigyaResponse
	Data struct {
		PersonID string `json:"personId"`
	} `json:"data"`
}

type jwtResponse struct {
	gigyaResponse
	IDToken string `json:"id_token"`
}

// Person Kamereon 用户及其账户
type Person struct {
	PersonID string    `json:"personId"`
	Accounts []Account `json:"accounts"`
}

type Account struct {
	AccountID     string `json:"accountId"`
	AccountType   string `json:"accountType"` // MYRENAULT, MYDACIA, SFDC
	AccountStatus string `json:"accountStatus"`
}

// VehicleLink 账户下的车辆
type VehicleLink struct {
	VIN    string `json:"vin"`
	Status string `json:"status"`
}

type vehiclesResponse struct {
	AccountID    string        `json:"accountId"`
	VehicleLinks []VehicleLink `json:"vehicleLinks"`
}

// BatteryStatus car-adapter battery-status 属性
type BatteryStatus struct {
	Timestamp                  time.Time `json:"timestamp"`
	BatteryLevel               *int      `json:"batteryLevel"`
	BatteryAutonomy            *float64  `json:"batteryAutonomy"`       // km
	PlugStatus                 int       `json:"plugStatus"`            // 0 未插入, 1 已插入
	ChargingStatus             float64   `json:"chargingStatus"`        // 1.0 充电中
	ChargingRemainingTime      *int      `json:"chargingRemainingTime"` // 分钟，到 100%
	ChargingInstantaneousPower *float64  `json:"chargingInstantaneousPower,omitempty"`
}

// Plugged 是否插入充电线
func (b *BatteryStatus) Plugged() bool {
	return b.PlugStatus == 1
}

// Cockpit car-adapter cockpit 属性
type Cockpit struct {
	TotalMileage *float64 `json:"totalMileage"` // km
}

// kamereonData car-adapter 接口的 data.attributes 包装
type kamereonData[T any] struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes T      `json:"attributes"`
	} `json:"data"`
}
