package utils

import (
	"net"
)

// GetLocalIP 获取本机的内网IPv4地址，取不到时退回localhost
func GetLocalIP() string {
	loop := "localhost"
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return loop
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return loop
}
