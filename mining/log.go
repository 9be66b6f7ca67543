package mining

import (
	"github.com/emberchain/emberd/infrastructure/logger"
	"github.com/emberchain/emberd/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.MNSV)
var spawn = panics.GoroutineWrapperFunc(log)
