package pid

var SignalsLive = signalsLive
