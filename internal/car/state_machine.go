package car

// AllowTransition 定义车辆可售状态机的允许流转关系。
// 所有流转都由订单生命周期事件触发，不对外暴露直接改状态的入口。
var AllowTransition = map[Status][]Status{
	StatusAvailable: {StatusReserved},               // 下单锁定
	StatusReserved:  {StatusAvailable, StatusSold},  // 取消回滚 / 交车售出
	// 终态：SOLD 不再流转
	StatusSold: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// from == to 视为允许（支付确认时对 RESERVED 的幂等重申即走这里）。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
